package memtrace_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

func block(text string) *mir.Block {
	fn := mir.NewFunction("f")
	b := fn.AddBlock("entry")

	seq, err := fn.ParseSeq(text)
	Expect(err).NotTo(HaveOccurred())
	b.Append(seq...)

	return b
}

var _ = Describe("Resolver", func() {
	var r memtrace.Resolver

	BeforeEach(func() {
		r = memtrace.NewResolver(msp430.DefaultMemoryMap())
	})

	DescribeTable("resolving the destination of the last instruction",
		func(text string, want msp430.Region) {
			b := block(text)
			last := len(b.Instrs) - 1
			Expect(r.Regions(b, last).Dst).To(Equal(want))
		},
		Entry("explicit tag", "mov r4, 0(r5)[peripheral]", msp430.RegionPeripheral),
		Entry("absolute address", "mov r4, &0x0100", msp430.RegionPeripheral),
		Entry("symbolic address", "mov r4, 0xc100", msp430.RegionProgram),
		Entry("constant base", "mov #0x0120, r5; mov r4, 2(r5)", msp430.RegionPeripheral),
		Entry("constant base through indirection", "mov #0x0120, r5; rra @r5", msp430.RegionPeripheral),
		Entry("base clobbered", "mov #0x0120, r5; add r6, r5; mov r4, 2(r5)", msp430.RegionData),
		Entry("stack", "mov r4, 2(sp)", msp430.RegionData),
		Entry("unknown pointer", "mov r4, 0(r12)", msp430.RegionData),
		Entry("named object", "mov r4, &buf", msp430.RegionData),
		Entry("register", "mov r4, r5", msp430.RegionData),
	)

	It("should fall back to the conservative region", func() {
		r.Conservative = msp430.RegionPeripheral
		b := block("mov r4, 0(r12)")
		Expect(r.Regions(b, 0).Dst).To(Equal(msp430.RegionPeripheral))

		b = block("mov r4, &0x3000")
		Expect(r.Regions(b, 0).Dst).To(Equal(msp430.RegionPeripheral))
	})
})

var _ = Describe("Classifier", func() {
	var cl *memtrace.Classifier

	BeforeEach(func() {
		t := memtrace.DefaultTable()
		cl = memtrace.NewClassifier(t, memtrace.NewResolver(t.MemoryMap()))
	})

	It("should ignore the regions of register operands", func() {
		b := block("mov r4, r5")
		_, c, err := cl.Classify(b.Instrs[0], msp430.RegionProgram, msp430.RegionProgram)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(memtrace.Class("1 | 0 | 0 | 1")))
	})

	It("should classify peripheral stores", func() {
		b := block("mov r4, &0x0100")
		code, c, err := cl.ClassifyAt(b, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(memtrace.Class("4 | 0001 | 0000 | 1001")))
		Expect(code.Class()).To(Equal(c))

		_, c, err = cl.ClassifyNormalized(b, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(memtrace.Class("4 | 0000 | 0001 | 1001")))
	})

	It("should reject stores to program memory", func() {
		b := block("mov r4, &0xc000")
		_, _, err := cl.ClassifyAt(b, 0)
		Expect(err).To(MatchError(memtrace.ErrUnsupportedRegionPair))
	})

	It("should report sentinels without failing", func() {
		b := block("push 2(r4)")
		code, c, err := cl.ClassifyAt(b, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(memtrace.SimulationFails))
		Expect(code).To(Equal(memtrace.CodeSimulationFails))
	})
})

var _ = Describe("Catalogue", func() {
	var (
		cl  *memtrace.Classifier
		cat *memtrace.Catalogue
		mm  msp430.MemoryMap
	)

	BeforeEach(func() {
		t := memtrace.DefaultTable()
		mm = t.MemoryMap()
		cl = memtrace.NewClassifier(t, memtrace.NewResolver(mm))

		var err error
		cat, err = memtrace.NewCatalogue(cl, memtrace.DefaultScratch(mm))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reproduce every class it lists", func() {
		fn := mir.NewFunction("f")
		b := fn.AddBlock("entry")

		for _, c := range cat.Classes() {
			tpl, err := cat.Lookup(c)
			Expect(err).NotTo(HaveOccurred())

			b.Instrs = []*mir.Instr{tpl.Instantiate(fn)}
			_, got, err := cl.ClassifyAt(b, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(c), tpl.String())
		}
	})

	It("should cover the classes ordinary code needs", func() {
		Expect(cat.Classes()).To(HaveLen(30))

		for _, c := range []memtrace.Class{
			"1 | 0 | 0 | 1",
			"2 | 00 | 00 | 11",
			"2 | 00 | 10 | 01",
			"3 | 000 | 010 | 101",
			"3 | 010 | 000 | 101",
			"3 | 000 | 000 | 111",
			"4 | 0001 | 0000 | 1001",
			"5 | 00101 | 10000 | 10001",
			"6 | 010101 | 000000 | 110001",
		} {
			_, err := cat.Lookup(c)
			Expect(err).NotTo(HaveOccurred(), string(c))
		}
	})

	It("should not pretend to reproduce control transfers", func() {
		for _, c := range []memtrace.Class{
			"3 | 000 | 100 | 000",
			"5 | 00000 | 10000 | 00000",
			"3 | 000 | 001 | 001",
			"2 | 10 | 00 | 01",
		} {
			_, err := cat.Lookup(c)
			Expect(err).To(MatchError(memtrace.ErrNoTemplate), string(c))
		}
	})

	It("should prefer register dummies", func() {
		tpl, err := cat.ByCycles(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(tpl.Op).To(Equal(msp430.MOV16rc))

		_, err = cat.ByCycles(7)
		Expect(err).To(MatchError(memtrace.ErrNoTemplate))
	})

	It("should not write outside the scratch words", func() {
		s := memtrace.DefaultScratch(mm)
		fn := mir.NewFunction("f")

		for _, c := range cat.Classes() {
			tpl, _ := cat.Lookup(c)
			in := tpl.Instantiate(fn)

			Expect(in.Defs()).NotTo(ContainElement(BeElementOf(msp430.R4, msp430.R12, msp430.SP)))
			for _, w := range in.MemWrites() {
				addr, ok := w.Address()
				Expect(ok).To(BeTrue())
				Expect(addr).To(BeElementOf(s.Data, s.Peripheral))
			}
		}
	})

	It("should reject scratch addresses in the wrong region", func() {
		s := memtrace.DefaultScratch(mm)
		s.Peripheral = 0x0400

		_, err := memtrace.NewCatalogue(cl, s)
		Expect(err).To(MatchError(ContainSubstring("peripheral scratch address")))
	})
})
