package mir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/mir"
)

var _ = Describe("Assembly parser", func() {
	var fn *mir.Function

	BeforeEach(func() {
		fn = mir.NewFunction("f")
		fn.AddBlock("entry")
		fn.AddBlock("L")
	})

	DescribeTable("selecting opcodes",
		func(text, opcode string) {
			in, err := fn.ParseInstr(text)
			Expect(err).NotTo(HaveOccurred())
			Expect(in.Op.String()).To(Equal(opcode))
		},
		Entry("register move", "mov r4, r5", "MOV16rr"),
		Entry("constant generator", "mov #0, r3", "MOV16rc"),
		Entry("extension-word immediate", "mov #0x1234, r5", "MOV16ri"),
		Entry("indexed source", "add 2(r4), r5", "ADD16rm"),
		Entry("absolute destination", "mov r4, &0x0100", "MOV16mr"),
		Entry("symbolic source", "mov 0x0200, r4", "MOV16rm"),
		Entry("autoincrement", "mov.b @r4+, 0(r5)", "MOV8mp"),
		Entry("emulated clr", "clr r5", "MOV16rc"),
		Entry("emulated pop", "pop r10", "MOV16rp"),
		Entry("emulated tst", "tst.b r12", "CMP8rc"),
		Entry("nop", "nop", "MOV16rc"),
		Entry("one-operand", "rra @r4", "RRA16n"),
		Entry("push", "push r10", "PUSH16r"),
		Entry("call", "call #memcpy", "CALLi"),
		Entry("call through register", "call r15", "CALLr"),
		Entry("direct branch", "br #L", "Bi"),
		Entry("indirect branch", "br r4", "Br"),
		Entry("jump", "jmp L", "JMP"),
		Entry("conditional jump", "jne L", "JCC"),
		Entry("return", "ret", "RET"),
		Entry("pseudo", "adjcallstackdown #4", "ADJCALLSTACKDOWN"),
	)

	It("should keep region annotations", func() {
		in, err := fn.ParseInstr("mov r4, 2(r5)[peripheral]")
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Dst().Region).To(Equal(msp430.RegionPeripheral))
		Expect(fn.Format(in)).To(Equal("mov r4, 2(r5)[peripheral]"))
	})

	It("should round-trip through the formatter", func() {
		for _, text := range []string{
			"mov #0x1234, r5",
			"add.b @r4+, 0xa(r6)",
			"jl L",
			"call #f",
			"br #L",
			"cmp &0x0200, r12",
		} {
			in, err := fn.ParseInstr(text)
			Expect(err).NotTo(HaveOccurred())

			again, err := fn.ParseInstr(fn.Format(in))
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Op).To(Equal(in.Op), text)
			Expect(again.Ops).To(Equal(in.Ops), text)
		}
	})

	It("should report defs and uses", func() {
		in, err := fn.ParseInstr("add @r4+, r5")
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Uses()).To(ConsistOf(msp430.R4, msp430.R5))
		Expect(in.Defs()).To(ConsistOf(msp430.R4, msp430.R5, msp430.SR))

		in, err = fn.ParseInstr("mov #0, r3")
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Defs()).To(BeEmpty())
	})

	It("should reject malformed input", func() {
		for _, text := range []string{
			"mov r4",
			"jmp nowhere",
			"mov r4, #3",
			"frob r4, r5",
			"mov @rx, r4",
			"mov r4, 2(r5)[attic]",
		} {
			_, err := fn.ParseInstr(text)
			Expect(err).To(MatchError(mir.ErrSyntax), text)
		}
	})
})
