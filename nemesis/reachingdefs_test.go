package nemesis_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/nemesis"
)

var _ = Describe("ReachingDefs", func() {
	It("should hide earlier definitions in the same block", func() {
		fn := build("straight",
			[2]string{"entry", "mov #1, r4; mov r4, r5; mov #2, r4; mov r4, r6; ret"},
		)
		ins := fn.Blocks[0].Instrs
		rd := nemesis.NewReachingDefs(fn)

		Expect(rd.GetDefsBefore(ins[1].ID, msp430.R4)).To(Equal([]mir.InstrID{ins[0].ID}))
		Expect(rd.GetDefsBefore(ins[3].ID, msp430.R4)).To(Equal([]mir.InstrID{ins[2].ID}))
		Expect(rd.GetDefsAfter(ins[0].ID, msp430.R4)).To(Equal([]mir.InstrID{ins[2].ID}))
	})

	It("should report live-in values", func() {
		fn := build("livein", [2]string{"entry", "mov r12, r4; ret"})
		rd := nemesis.NewReachingDefs(fn)

		Expect(rd.GetDefsBefore(fn.Blocks[0].Instrs[0].ID, msp430.R12)).
			To(Equal([]mir.InstrID{mir.LiveIn}))
	})

	It("should merge definitions over back edges", func() {
		fn := build("loop",
			[2]string{"entry", "mov #0, r4"},
			[2]string{"body", "add #1, r4; cmp #3, r4; jne body"},
			[2]string{"exit", "mov r4, r12; ret"},
		)
		rd := nemesis.NewReachingDefs(fn)

		init := fn.Blocks[0].Instrs[0].ID
		step := fn.Blocks[1].Instrs[0].ID

		Expect(rd.In(id(fn, "body"), msp430.R4)).To(ConsistOf(init, step))
		Expect(rd.In(id(fn, "exit"), msp430.R4)).To(ConsistOf(step))
		Expect(rd.Out(id(fn, "entry"), msp430.R4)).To(ConsistOf(init))
	})

	It("should see both definitions at a join", func() {
		fn := build("diamond",
			[2]string{"entry", "cmp #0, r12; jeq else"},
			[2]string{"then", "mov #1, r4; jmp join"},
			[2]string{"else", "mov #2, r4"},
			[2]string{"join", "mov r4, r12; ret"},
		)
		rd := nemesis.NewReachingDefs(fn)

		Expect(rd.In(id(fn, "join"), msp430.R4)).To(ConsistOf(
			fn.BlockByName("then").Instrs[0].ID,
			fn.BlockByName("else").Instrs[0].ID,
		))
		Expect(rd.In(id(fn, "join"), msp430.R12)).To(ConsistOf(mir.LiveIn))
	})
})
