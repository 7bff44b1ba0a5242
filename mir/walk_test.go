package mir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/mir"
)

var _ = Describe("Walk", func() {
	It("should follow the chosen arm of a recorded region", func() {
		fn := build("diamond",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r13; jmp join"},
			[2]string{"else", "mov 2(r4), r13"},
			[2]string{"join", "ret"},
		)
		fn.Regions = []mir.Region{{
			Branch: id(fn, "entry"),
			True:   id(fn, "else"),
			False:  id(fn, "then"),
			Join:   id(fn, "join"),
		}}

		t, err := mir.Walk(fn, id(fn, "entry"), id(fn, "join"), mir.TakeTrue)
		Expect(err).NotTo(HaveOccurred())
		Expect(mir.Cycles(t)).To(Equal([]int{1, 2, 3}))

		f, err := mir.Walk(fn, id(fn, "entry"), id(fn, "join"), mir.TakeFalse)
		Expect(err).NotTo(HaveOccurred())
		Expect(mir.Cycles(f)).To(Equal([]int{1, 2, 1, 2}))
	})

	It("should unroll loops with a recorded trip count", func() {
		fn := build("loop",
			[2]string{"entry", "mov #0, r4"},
			[2]string{"body", "add #1, r4; cmp #3, r4; jne body"},
			[2]string{"exit", "ret"},
		)
		fn.Loops = []mir.LoopExit{{Latch: id(fn, "body"), Header: id(fn, "body"), Trip: 3}}

		seq, err := mir.Walk(fn, id(fn, "entry"), id(fn, "exit"), mir.TakeTrue)
		Expect(err).NotTo(HaveOccurred())
		Expect(seq).To(HaveLen(1 + 3*3))
	})

	It("should reject unrecorded conditional branches", func() {
		fn := build("diamond",
			[2]string{"entry", "cmp #0, r12; jeq join"},
			[2]string{"then", "nop"},
			[2]string{"join", "ret"},
		)

		_, err := mir.Walk(fn, id(fn, "entry"), id(fn, "join"), mir.TakeTrue)
		Expect(err).To(MatchError(mir.ErrUnbalancedBranch))
	})

	It("should stop at returns that miss the target", func() {
		fn := build("early",
			[2]string{"entry", "ret"},
			[2]string{"other", "ret"},
		)

		_, err := mir.Walk(fn, id(fn, "entry"), id(fn, "other"), mir.TakeTrue)
		Expect(err).To(MatchError(mir.ErrWalkLimit))
	})

	It("should stop after the last block of a loop iteration", func() {
		fn := build("iteration",
			[2]string{"header", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r13; jmp latch"},
			[2]string{"else", "mov 2(r4), r13"},
			[2]string{"latch", "dec r5; jne header"},
			[2]string{"exit", "ret"},
		)
		fn.Regions = []mir.Region{{
			Branch: id(fn, "header"),
			True:   id(fn, "else"),
			False:  id(fn, "then"),
			Join:   id(fn, "latch"),
		}}

		last := func(b mir.BlockID) bool { return b == id(fn, "latch") }

		p, err := mir.WalkUntil(fn, id(fn, "header"), mir.TakeTrue, last)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Blocks).To(Equal([]mir.BlockID{id(fn, "header"), id(fn, "else"), id(fn, "latch")}))
		Expect(mir.Cycles(p.Instrs)).To(Equal([]int{1, 2, 3, 1, 2}))

		p, err = mir.WalkUntil(fn, id(fn, "header"), mir.TakeFalse, last)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Blocks).To(Equal([]mir.BlockID{id(fn, "header"), id(fn, "then"), id(fn, "latch")}))
	})
})
