package nemesis_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/nemesis"
)

var _ = Describe("Sensitivity analysis", func() {
	var pass *nemesis.Pass

	BeforeEach(func() {
		var err error
		pass, err = nemesis.New(nemesis.Options{})
		Expect(err).NotTo(HaveOccurred())
	})

	secretBranches := func(a *nemesis.Analysis) []string {
		var out []string
		for b, bi := range a.Infos {
			if bi.HasSecretDependentBranch {
				out = append(out, fmt.Sprint(b))
			}
		}

		return out
	}

	It("should follow secrets through registers", func() {
		fn := build("regs",
			[2]string{"entry", "mov r12, r4; add #1, r4; cmp #0, r4; jeq out"},
			[2]string{"mid", "cmp #0, r5; jeq out"},
			[2]string{"out", "ret"},
		)

		a, err := pass.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.HasSecretDependentBranch).To(BeTrue())
		Expect(a.Infos[id(fn, "entry")].HasSecretDependentBranch).To(BeTrue())
		Expect(a.Infos[id(fn, "mid")].HasSecretDependentBranch).To(BeFalse())
		Expect(secretBranches(a)).To(HaveLen(1))

		ins := fn.Blocks[0].Instrs
		Expect(a.Taint.Instrs[ins[0].ID]).To(BeTrue())
		Expect(a.Taint.Instrs[ins[1].ID]).To(BeTrue())
	})

	It("should follow secrets through memory", func() {
		fn := build("mem",
			[2]string{"entry", "mov r13, &0x0300; mov r14, 4(sp); mov &0x0302, r6; cmp #0, r6; jeq out"},
			[2]string{"load", "mov &0x0300, r5; cmp #0, r5; jeq out"},
			[2]string{"stack", "mov 4(sp), r7; tst r7; jeq out"},
			[2]string{"out", "ret"},
		)

		a, err := pass.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Infos[id(fn, "entry")].HasSecretDependentBranch).To(BeFalse())
		Expect(a.Infos[id(fn, "load")].HasSecretDependentBranch).To(BeTrue())
		Expect(a.Infos[id(fn, "stack")].HasSecretDependentBranch).To(BeTrue())
		Expect(a.Taint.Mem).To(HaveKey("0x0300"))
		Expect(a.Taint.Mem).To(HaveKey("sp+4"))
		Expect(a.Taint.AnyMem).To(BeFalse())
	})

	It("should taint every load after a store through an unknown pointer", func() {
		fn := build("anymem",
			[2]string{"entry", "mov r12, 0(r4); mov &0x0400, r5; cmp #0, r5; jeq out"},
			[2]string{"out", "ret"},
		)

		a, err := pass.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Taint.AnyMem).To(BeTrue())
		Expect(a.HasSecretDependentBranch).To(BeTrue())
	})

	It("should take declared secrets over the argument registers", func() {
		fn := build("declared",
			[2]string{"entry", "cmp #0, r12; jeq out"},
			[2]string{"mid", "cmp #0, r9; jeq out"},
			[2]string{"load", "cmp #0, &key; jeq out"},
			[2]string{"out", "ret"},
		)
		fn.Secrets = mir.Secrets{Regs: []msp430.Reg{msp430.R9}, Mem: []string{"key"}}

		a, err := pass.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Infos[id(fn, "entry")].HasSecretDependentBranch).To(BeFalse())
		Expect(a.Infos[id(fn, "mid")].HasSecretDependentBranch).To(BeTrue())
		Expect(a.Infos[id(fn, "load")].HasSecretDependentBranch).To(BeTrue())
	})

	It("should record per-instruction dependencies", func() {
		fn := build("deps", [2]string{"entry", "mov #1, r4; add r4, r12; ret"})

		a, err := pass.Analyze(fn)
		Expect(err).NotTo(HaveOccurred())

		bi := a.Infos[id(fn, "entry")]
		ins := fn.Blocks[0].Instrs
		Expect(bi.Deps[1]).To(ContainElements(ins[0].ID, mir.LiveIn))
		Expect(bi.Defs[msp430.R4]).To(Equal([]mir.InstrID{ins[0].ID}))
	})
})
