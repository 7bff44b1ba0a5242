package memtrace

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/mir"
)

// ErrNoTemplate is returned when no dummy instruction has a class.
var ErrNoTemplate = errors.New("no dummy instruction with this trace class")

// dummyImm is the immediate of dummies that need an extension word.
const dummyImm = 0x5a5a

// Scratch holds the addresses dummy instructions access, one per region.
// Dummies write the data and peripheral scratch words, so neither may
// hold live state.
type Scratch struct {
	Data       uint16 `yaml:"data"`
	Peripheral uint16 `yaml:"peripheral"`
	Program    uint16 `yaml:"program"`
}

// DefaultScratch picks the last word of data and peripheral memory and the
// first word of program memory.
func DefaultScratch(mm msp430.MemoryMap) Scratch {
	return Scratch{
		Data:       mm.Data.End &^ 1,
		Peripheral: mm.Peripheral.End &^ 1,
		Program:    mm.Program.Start,
	}
}

// Validate checks that each scratch address lies in its region.
func (s Scratch) Validate(mm msp430.MemoryMap) error {
	for _, c := range []struct {
		addr uint16
		want msp430.Region
	}{
		{s.Data, msp430.RegionData},
		{s.Peripheral, msp430.RegionPeripheral},
		{s.Program, msp430.RegionProgram},
	} {
		if got := mm.RegionOf(c.addr); got != c.want {
			return fmt.Errorf("%s scratch address 0x%04x lies in %s memory", c.want, c.addr, got)
		}
	}

	return nil
}

func (s Scratch) addr(r msp430.Region) uint16 {
	switch r {
	case msp430.RegionPeripheral:
		return s.Peripheral
	case msp430.RegionProgram:
		return s.Program
	}

	return s.Data
}

// Template is a side-effect-free instruction with a known class.
type Template struct {
	Class Class
	Op    msp430.Opcode
	Ops   []mir.Operand
}

// Instantiate creates a fresh instruction from the template.
func (t Template) Instantiate(fn *mir.Function) *mir.Instr {
	return fn.NewInstr(t.Op, t.Ops...)
}

func (t Template) String() string {
	return fmt.Sprintf("%s (%s)", mir.NewFunction("").NewInstr(t.Op, t.Ops...), t.Class)
}

// Catalogue indexes dummy templates by the class they reproduce.
type Catalogue struct {
	byClass map[Class]Template
	classes []Class
}

// NewCatalogue classifies the candidate dummies and keeps, for each class,
// the first candidate producing it.
func NewCatalogue(c *Classifier, s Scratch) (*Catalogue, error) {
	mm := c.table.MemoryMap()
	if err := s.Validate(mm); err != nil {
		return nil, err
	}

	cat := &Catalogue{byClass: make(map[Class]Template)}
	fn := mir.NewFunction("dummies")
	b := fn.AddBlock("entry")

	for _, cand := range candidates(s) {
		in := cand.Instantiate(fn)
		b.Instrs = []*mir.Instr{in}

		_, cls, err := c.ClassifyAt(b, 0)
		if err != nil {
			return nil, fmt.Errorf("dummy %s: %w", in, err)
		}

		if cls.Sentinel() {
			continue
		}

		if _, ok := cat.byClass[cls]; ok {
			continue
		}

		cand.Class = cls
		cat.byClass[cls] = cand
		cat.classes = append(cat.classes, cls)
	}

	return cat, nil
}

// Lookup returns the template reproducing a class.
func (c *Catalogue) Lookup(cls Class) (Template, error) {
	t, ok := c.byClass[cls]
	if !ok {
		return Template{}, fmt.Errorf("%q: %w", cls, ErrNoTemplate)
	}

	return t, nil
}

// ByCycles returns the first template with the given latency.
func (c *Catalogue) ByCycles(n int) (Template, error) {
	for _, cls := range c.classes {
		if cls.Cycles() == n {
			return c.byClass[cls], nil
		}
	}

	return Template{}, fmt.Errorf("%d cycles: %w", n, ErrNoTemplate)
}

// Classes lists the classes the catalogue covers, in preference order.
func (c *Catalogue) Classes() []Class {
	return slices.Clone(c.classes)
}

// candidates lists the dummies in preference order. Register dummies
// write r3, which discards the value. Memory dummies only touch the
// scratch words.
func candidates(s Scratch) []Template {
	var (
		cg    = mir.RegOp(msp430.CG)
		stack = mir.IndirectOp(msp430.SP).In(msp430.RegionData)
		abs   = func(r msp430.Region) mir.Operand {
			return mir.AbsOp(s.addr(r)).In(r)
		}
		writable = []msp430.Region{msp430.RegionData, msp430.RegionPeripheral}
		readable = []msp430.Region{msp430.RegionData, msp430.RegionPeripheral, msp430.RegionProgram}
		out      []Template
	)

	add := func(mn string, src, dst mir.Operand) {
		op, ok := msp430.Lookup(mn, false, src.Mode.Canonical(), dst.Mode.Canonical())
		if !ok {
			panic(fmt.Sprintf("no opcode for dummy %s %s, %s", mn, src, dst))
		}

		out = append(out, Template{Op: op, Ops: []mir.Operand{src, dst}})
	}

	add("mov", mir.ConstOp(0), cg)
	add("mov", mir.ImmOp(dummyImm), cg)
	add("mov", stack, cg)

	for _, r := range readable {
		add("mov", abs(r), cg)
	}

	for _, src := range []mir.Operand{mir.ConstOp(0), mir.ImmOp(dummyImm), stack} {
		for _, r := range writable {
			add("mov", src, abs(r))
			add("bis", src, abs(r))
		}
	}

	for _, sr := range readable {
		for _, dr := range writable {
			add("mov", abs(sr), abs(dr))
			add("bis", abs(sr), abs(dr))
		}
	}

	return out
}
