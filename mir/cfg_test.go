package mir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/mir"
)

var _ = Describe("CFG", func() {
	It("should find dominators and post-dominators of a diamond", func() {
		fn := build("diamond",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r13; jmp join"},
			[2]string{"else", "mov #2, r13"},
			[2]string{"join", "ret"},
		)

		cfg, err := mir.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())

		entry, then, els, join := id(fn, "entry"), id(fn, "then"), id(fn, "else"), id(fn, "join")
		Expect(cfg.IDom(join)).To(Equal(entry))
		Expect(cfg.IDom(then)).To(Equal(entry))
		Expect(cfg.IPDom(entry)).To(Equal(join))
		Expect(cfg.IPDom(els)).To(Equal(join))
		Expect(cfg.IPDom(join)).To(Equal(mir.VirtualExit))
		Expect(cfg.Dominates(entry, els)).To(BeTrue())
		Expect(cfg.Dominates(then, join)).To(BeFalse())
		Expect(cfg.PostDominates(join, then)).To(BeTrue())
		Expect(cfg.Loops).To(BeEmpty())
	})

	It("should report VirtualExit when arms return separately", func() {
		fn := build("tworets",
			[2]string{"entry", "cmp #0, r12; jeq b"},
			[2]string{"a", "ret"},
			[2]string{"b", "ret"},
		)

		cfg, err := mir.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.IPDom(id(fn, "entry"))).To(Equal(mir.VirtualExit))
	})

	It("should find nested loops", func() {
		fn := build("nest",
			[2]string{"entry", "mov #0, r4"},
			[2]string{"outer", "mov #0, r5"},
			[2]string{"inner", "add #1, r5; cmp #4, r5; jne inner"},
			[2]string{"latch", "add #1, r4; cmp #4, r4; jne outer"},
			[2]string{"exit", "ret"},
		)

		cfg, err := mir.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Loops).To(HaveLen(2))

		outer := cfg.LoopWithHeader(id(fn, "outer"))
		inner := cfg.LoopWithHeader(id(fn, "inner"))
		Expect(outer).NotTo(BeNil())
		Expect(inner).NotTo(BeNil())
		Expect(inner.Parent).To(Equal(outer))
		Expect(inner.Depth).To(Equal(2))
		Expect(outer.Contains(id(fn, "inner"))).To(BeTrue())
		Expect(outer.Latches).To(ConsistOf(id(fn, "latch")))
		Expect(outer.Exiting).To(ConsistOf(id(fn, "latch")))
		Expect(cfg.LoopFor(id(fn, "inner"))).To(Equal(inner))
	})

	It("should reject loops with two entries", func() {
		fn := build("irreducible",
			[2]string{"entry", "cmp #0, r12; jeq b"},
			[2]string{"a", "add #1, r4"},
			[2]string{"b", "add #1, r5; cmp #9, r5; jne a"},
			[2]string{"exit", "ret"},
		)

		_, err := mir.Analyze(fn)
		Expect(err).To(MatchError(mir.ErrIrreducible))
	})

	It("should keep its answers after cloning", func() {
		fn := build("diamond",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "jmp join"},
			[2]string{"else", "nop"},
			[2]string{"join", "ret"},
		)

		c := fn.Clone()
		fn.AddBlock("extra")
		fn.Blocks[0].Instrs = nil

		Expect(c.Blocks).To(HaveLen(4))
		Expect(c.Blocks[0].Instrs).To(HaveLen(2))

		fn.Restore(c)
		Expect(fn.Blocks).To(HaveLen(4))
		Expect(fn.NumInstrs()).To(Equal(5))
	})
})
