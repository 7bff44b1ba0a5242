package nemesis_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/nemesis"
)

var _ = Describe("Pass", func() {
	var (
		pass    *nemesis.Pass
		scratch memtrace.Scratch
	)

	BeforeEach(func() {
		var err error
		pass, err = nemesis.New(nemesis.Options{})
		Expect(err).NotTo(HaveOccurred())

		scratch = memtrace.DefaultScratch(msp430.DefaultMemoryMap())
	})

	expectFailure := func(fn *mir.Function, target error) *mir.Diagnostic {
		err := pass.Run(fn)
		Expect(err).To(MatchError(target))

		var d *mir.Diagnostic
		Expect(err).To(BeAssignableToTypeOf(d))
		d = err.(*mir.Diagnostic)
		Expect(d.Pass).To(Equal(nemesis.Name))
		Expect(d.Func).To(Equal(fn.Name))

		return d
	}

	It("should leave functions without secret branches alone", func() {
		fn := build("public",
			[2]string{"entry", "cmp #0, r5; jeq out"},
			[2]string{"mid", "mov #1, r6"},
			[2]string{"out", "ret"},
		)
		before := fn.NumInstrs()

		Expect(pass.Run(fn)).To(Succeed())
		Expect(fn.NumInstrs()).To(Equal(before))
		Expect(fn.Regions).To(BeEmpty())
	})

	It("should align a diamond", func() {
		fn := build("diamond",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r13; add r13, r14; jmp join"},
			[2]string{"else", "mov 2(r4), r13"},
			[2]string{"join", "ret"},
		)
		then := fn.BlockByName("then").Instrs

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)
		Expect(fn.Regions).To(HaveLen(1))

		r := fn.Regions[0]
		Expect(r.Branch).To(Equal(id(fn, "entry")))
		Expect(r.Join).To(Equal(id(fn, "join")))

		for _, in := range then[:2] {
			_, _, ok := fn.Locate(in.ID)
			Expect(ok).To(BeTrue(), "original instruction %s was dropped", in)
		}

		t, err := mir.Walk(fn, r.Branch, r.Join, mir.TakeTrue)
		Expect(err).NotTo(HaveOccurred())
		// cmp, jeq, shadow of jmp, else arm, shadows of the then arm, jmp
		Expect(t).To(HaveLen(9))
	})

	It("should only add side-effect-free shadows", func() {
		fn := build("stores",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov r4, &0x0100; push r5; mov r6, 0(r7); jmp join"},
			[2]string{"else", "add @r4+, r9"},
			[2]string{"join", "ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)

		shadows := 0
		for _, bid := range fn.Layout {
			for _, in := range fn.Blocks[bid].Instrs {
				if !in.IsShadow() || in.IsBranch() {
					continue
				}

				shadows++
				Expect(in.Defs()).NotTo(ContainElement(msp430.SP))

				dst := in.Dst()
				if dst.IsMemory() {
					addr, ok := dst.Address()
					Expect(ok).To(BeTrue())
					Expect(addr).To(BeElementOf(scratch.Data, scratch.Peripheral))
				} else {
					Expect(dst.Reg).To(Equal(msp430.CG))
				}
			}
		}

		Expect(shadows).To(BeNumerically(">=", 5))
	})

	It("should count peripheral shadows as data accesses", func() {
		fn := build("periph",
			[2]string{"entry", "cmp #0, r12; jeq join"},
			[2]string{"then", "mov r4, &0x0100; jmp join"},
			[2]string{"join", "ret"},
		)
		store := fn.BlockByName("then").Instrs[0]

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)

		var shadow *mir.Instr
		for _, bid := range fn.Layout {
			for _, in := range fn.Blocks[bid].Instrs {
				if in.ShadowOf == store.ID {
					shadow = in
				}
			}
		}

		Expect(shadow).NotTo(BeNil())
		addr, ok := shadow.Dst().Address()
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(scratch.Data))
		Expect(shadow.Cycles()).To(Equal(store.Cycles()))
	})

	It("should align branches with an empty arm", func() {
		fn := build("empty",
			[2]string{"entry", "tst r13; jne join"},
			[2]string{"then", "mov r4, &0x0300; inc r5"},
			[2]string{"join", "ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)

		for _, bid := range fn.Layout {
			b := fn.Blocks[bid]
			if b.Name == "then" || b.Name == "entry" || b.Name == "join" {
				continue
			}

			Expect(b.Sensitive).To(BeTrue(), b.Name)
		}
	})

	It("should align nested branches innermost first", func() {
		fn := build("nested",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "cmp #1, r5; jeq inner"},
			[2]string{"thenA", "mov #1, r6; jmp thenJ"},
			[2]string{"inner", "mov 2(r4), r6; add r6, r6"},
			[2]string{"thenJ", "add r6, r7; jmp join"},
			[2]string{"else", "nop"},
			[2]string{"join", "ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		Expect(fn.Regions).To(HaveLen(2))
		Expect(fn.Regions[0].Branch).To(Equal(id(fn, "then")))
		Expect(fn.Regions[1].Branch).To(Equal(id(fn, "entry")))
		expectAligned(fn)
	})

	It("should merge returns so that arms meet", func() {
		fn := build("returns",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r15; ret"},
			[2]string{"else", "mov &0x0200, r15; ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)

		rets := 0
		for _, bid := range fn.Layout {
			for _, in := range fn.Blocks[bid].Instrs {
				if in.IsReturn() {
					rets++
				}
			}
		}

		Expect(rets).To(Equal(1))
	})

	It("should unroll bounded loops into the other arm", func() {
		fn := build("bounded",
			[2]string{"entry", "cmp #0, r12; jeq join"},
			[2]string{"pre", "mov #0, r4"},
			[2]string{"body", "add #1, r4; cmp #4, r4; jne body"},
			[2]string{"post", "jmp join"},
			[2]string{"join", "ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)
		Expect(fn.Loops).To(ContainElement(mir.LoopExit{
			Latch:  id(fn, "body"),
			Header: id(fn, "body"),
			Trip:   4,
		}))

		r := fn.Regions[0]
		seq, err := mir.Walk(fn, r.Branch, r.Join, mir.TakeFalse)
		Expect(err).NotTo(HaveOccurred())

		body := fn.BlockByName("body").Instrs[0]
		n := 0
		for _, in := range seq {
			if in.ID == body.ID {
				n++
			}
		}

		Expect(n).To(Equal(4))
	})

	It("should take trip counts from annotations", func() {
		fn := build("annotated",
			[2]string{"entry", "cmp #0, r12; jeq join"},
			[2]string{"body", "add #1, r5; cmp r6, r5; jne body"},
			[2]string{"post", "jmp join"},
			[2]string{"join", "ret"},
		)
		fn.LoopBounds["body"] = 3

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)
	})

	It("should reject loops without a static trip count", func() {
		fn := build("unbounded",
			[2]string{"entry", "cmp #0, r12; jeq join"},
			[2]string{"body", "add #1, r5; cmp r6, r5; jne body"},
			[2]string{"post", "jmp join"},
			[2]string{"join", "ret"},
		)

		d := expectFailure(fn, nemesis.ErrUnboundedLoop)
		Expect(d.Block).To(Equal("body"))
	})

	It("should reject loops whose exit depends on a secret", func() {
		fn := build("secretexit",
			[2]string{"entry", "mov #0, r4"},
			[2]string{"body", "add r12, r4; cmp #10, r4; jne body"},
			[2]string{"exit", "ret"},
		)

		d := expectFailure(fn, nemesis.ErrSecretLoopExit)
		Expect(d.Block).To(Equal("body"))
		Expect(d.Instr).To(ContainSubstring("jne"))
	})

	It("should reject indirect branches", func() {
		fn := build("indirect",
			[2]string{"entry", "cmp #0, r12; jeq out"},
			[2]string{"jump", "br r4"},
			[2]string{"out", "ret"},
		)

		d := expectFailure(fn, nemesis.ErrIndirectBranch)
		Expect(d.Block).To(Equal("jump"))
	})

	It("should reject irreducible control flow", func() {
		fn := build("irreducible",
			[2]string{"entry", "cmp #0, r12; jeq b"},
			[2]string{"a", "nop"},
			[2]string{"b", "inc r5; cmp #1, r5; jne a"},
			[2]string{"c", "ret"},
		)

		expectFailure(fn, mir.ErrIrreducible)
	})

	It("should roll back on failure", func() {
		fn := build("rollback",
			[2]string{"entry", "cmp #0, r12; jeq a"},
			[2]string{"b", "ret"},
			[2]string{"a", "mov #0, r4"},
			[2]string{"body", "add r12, r4; cmp #10, r4; jne body"},
			[2]string{"c", "ret"},
		)
		before := fn.Clone()

		expectFailure(fn, nemesis.ErrSecretLoopExit)
		Expect(fn.Layout).To(Equal(before.Layout))
		Expect(fn.NumInstrs()).To(Equal(before.NumInstrs()))
		Expect(fn.BlockByName("exit")).To(BeNil())
	})

	It("should wrap calls in sensitive regions", func() {
		fn := build("calls",
			[2]string{"entry", "call #init; cmp #0, r12; jeq join"},
			[2]string{"then", "call #helper"},
			[2]string{"join", "ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		expectAligned(fn)

		entry := fn.BlockByName("entry").Instrs
		Expect(entry[0].IsCall()).To(BeTrue())

		then := fn.BlockByName("then").Instrs
		Expect(then[0].Op).To(Equal(msp430.SecureEnter))
		Expect(then[1].IsCall()).To(BeTrue())
		Expect(then[2].Op).To(Equal(msp430.SecureExit))
	})

	It("should not realign a balanced function", func() {
		fn := build("twice",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r13; jmp join"},
			[2]string{"else", "mov 2(r4), r13"},
			[2]string{"join", "ret"},
		)

		Expect(pass.Run(fn)).To(Succeed())
		n := fn.NumInstrs()

		Expect(pass.Run(fn)).To(Succeed())
		Expect(fn.NumInstrs()).To(Equal(n))
		Expect(fn.Regions).To(HaveLen(1))
	})

	It("should dump the block analysis", func() {
		var buf bytes.Buffer

		p, err := nemesis.New(nemesis.Options{Dump: &buf})
		Expect(err).NotTo(HaveOccurred())

		fn := build("dump",
			[2]string{"entry", "cmp #0, r12; jeq join"},
			[2]string{"then", "nop"},
			[2]string{"join", "ret"},
		)

		Expect(p.Run(fn)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("secret"))
		Expect(buf.String()).To(ContainSubstring("sensitive"))
	})
})
