package pipeline_test

import (
	"bytes"
	"context"
	"errors"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/sllvm-defend/config"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/nemesis"
	"github.com/sarchlab/sllvm-defend/pipeline"
)

var errBoom = errors.New("boom")

var _ = Describe("Manager", func() {
	var (
		mockCtrl *gomock.Controller
		first    *MockPass
		second   *MockPass
		sink     *MockDiagnosticSink
		hook     *MockHook
		m        *pipeline.Manager
		fn       *mir.Function
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		first = NewMockPass(mockCtrl)
		second = NewMockPass(mockCtrl)
		sink = NewMockDiagnosticSink(mockCtrl)
		hook = NewMockHook(mockCtrl)

		first.EXPECT().Name().Return("First").AnyTimes()
		first.EXPECT().Preserved().Return([]string{"cfg", "loops"}).AnyTimes()
		second.EXPECT().Name().Return("Second").AnyTimes()
		second.EXPECT().Preserved().Return(nil).AnyTimes()

		m = pipeline.NewManager([]pipeline.Pass{first, second}, sink)
		m.AcceptHook(hook)

		fn = parse("f", "mov r4, r5; ret")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should run every pass in order", func() {
		var events []pipeline.Event

		hook.EXPECT().Func(gomock.Any()).Do(func(ctx sim.HookCtx) {
			Expect(ctx.Item).To(BeIdenticalTo(fn))
			if ctx.Pos == pipeline.HookPosPassEnd {
				events = append(events, ctx.Detail.(pipeline.Event))
			}
		}).Times(4)

		gomock.InOrder(
			first.EXPECT().Run(fn).Return(nil),
			second.EXPECT().Run(fn).Return(nil),
		)

		Expect(m.Run(fn)).To(Succeed())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Pass).To(Equal("First"))
		Expect(events[0].Invalidated).To(Equal([]string{"regions"}))
		Expect(events[1].Invalidated).To(Equal([]string{"cfg", "loops", "regions"}))
		Expect(events[1].RunID).To(Equal(m.RunID()))
	})

	It("should stop at the first failure and report it", func() {
		d := mir.Diagnose("First", fn, fn.Entry(), nil, "", errBoom)

		hook.EXPECT().Func(gomock.Any()).Times(3)
		first.EXPECT().Run(fn).Return(d)
		sink.EXPECT().Report(m.RunID(), d)

		Expect(m.Run(fn)).To(MatchError(errBoom))
	})

	It("should wrap plain errors in a diagnostic", func() {
		hook.EXPECT().Func(gomock.Any()).AnyTimes()
		first.EXPECT().Run(fn).Return(nil)
		second.EXPECT().Run(fn).Return(errBoom)
		sink.EXPECT().Report(gomock.Any(), gomock.Any()).Do(func(_ string, d *mir.Diagnostic) {
			Expect(d.Pass).To(Equal("Second"))
			Expect(d.Func).To(Equal("f"))
			Expect(d.Err).To(MatchError(errBoom))
		})

		Expect(m.Run(fn)).To(MatchError(errBoom))
	})

	It("should give each manager its own run id", func() {
		other := pipeline.NewManager(nil, nil)
		Expect(other.RunID()).NotTo(Equal(m.RunID()))
		Expect(other.Run(fn)).To(Succeed())
	})
})

var _ = Describe("Running many functions", func() {
	var (
		m    *pipeline.Manager
		sink *pipeline.ListSink
		fns  []*mir.Function
	)

	BeforeEach(func() {
		env, err := pipeline.NewEnv(config.Default())
		Expect(err).NotTo(HaveOccurred())

		passes, err := pipeline.Default().Build(env, config.Default().Passes)
		Expect(err).NotTo(HaveOccurred())

		sink = &pipeline.ListSink{}
		m = pipeline.NewManager(passes, sink)

		fns, err = mir.Parse([]byte(`
functions:
  - name: diamond
    blocks:
      - name: entry
        instrs: ["cmp #0, r12", "jeq else"]
      - name: then
        instrs: ["mov #1, r13", "add r13, r14", "jmp join"]
      - name: else
        instrs: ["mov 2(r4), r13"]
      - name: join
        instrs: ["ret"]
  - name: public
    blocks:
      - name: entry
        instrs: ["mov r4, r5", "ret"]
  - name: unbounded
    blocks:
      - name: entry
        instrs: ["cmp #0, r12", "jeq join"]
      - name: body
        instrs: ["add #1, r5", "cmp r6, r5", "jne body"]
      - name: post
        instrs: ["jmp join"]
      - name: join
        instrs: ["ret"]
`))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should harden functions independently", func() {
		times := pipeline.NewTimeHook()
		m.AcceptHook(times)
		m.AcceptHook(pipeline.TraceHook{})

		results := m.RunAll(context.Background(), fns, 3)

		Expect(results).To(HaveLen(3))
		Expect(results[0]).To(Equal(pipeline.Result{Func: "diamond"}))
		Expect(results[1]).To(Equal(pipeline.Result{Func: "public"}))
		Expect(results[2].Func).To(Equal("unbounded"))
		Expect(results[2].Err).To(MatchError(nemesis.ErrUnboundedLoop))

		Expect(fns[0].BlockByName("then").Sensitive).To(BeTrue())
		Expect(fns[0].Regions).To(HaveLen(1))

		diags := sink.Diagnostics()
		Expect(diags).To(HaveLen(1))
		Expect(diags[0].Func).To(Equal("unbounded"))
		Expect(diags[0].Block).To(Equal("body"))

		_, n := times.Total(nemesis.Name)
		Expect(n).To(Equal(3))

		var buf bytes.Buffer
		sink.WriteTable(&buf)
		Expect(buf.String()).To(ContainSubstring(nemesis.Name))
		Expect(buf.String()).To(ContainSubstring("unbounded"))
	})

	It("should not start functions after cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := m.RunAll(ctx, fns, 1)

		Expect(results).To(HaveLen(3))
		for _, r := range results {
			if r.Err != nil && !errors.Is(r.Err, nemesis.ErrUnboundedLoop) {
				Expect(r.Err).To(MatchError(context.Canceled))
			}
		}

		Expect(results[2].Err).To(HaveOccurred())
	})
})
