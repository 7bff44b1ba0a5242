package memtrace

import (
	"github.com/sarchlab/sllvm-defend/msp430"
)

// access is the memory behavior of an addressing-mode combination. Cycle
// numbers start at 1; 0 means no such access.
type access struct {
	cycles   int
	fetch    []int
	src      int
	dstRead  int
	dstWrite int
}

type rule struct {
	format msp430.Format
	src    msp430.Mode
	dst    msp430.Mode
	access access
}

// rules covers the ALU instructions. The destination read only happens
// for instructions that read their destination, so it is dropped for MOV.
var rules = []rule{
	{msp430.FormatTwoOperand, msp430.ModeRegister, msp430.ModeRegister, access{cycles: 1, fetch: []int{1}}},
	{msp430.FormatTwoOperand, msp430.ModeConstGen, msp430.ModeRegister, access{cycles: 1, fetch: []int{1}}},
	{msp430.FormatTwoOperand, msp430.ModeIndirect, msp430.ModeRegister, access{cycles: 2, fetch: []int{2}, src: 1}},
	{msp430.FormatTwoOperand, msp430.ModeIndirectAutoInc, msp430.ModeRegister, access{cycles: 2, fetch: []int{2}, src: 1}},
	{msp430.FormatTwoOperand, msp430.ModeImmediate, msp430.ModeRegister, access{cycles: 2, fetch: []int{1, 2}}},
	{msp430.FormatTwoOperand, msp430.ModeIndexed, msp430.ModeRegister, access{cycles: 3, fetch: []int{1, 3}, src: 2}},

	{msp430.FormatTwoOperand, msp430.ModeRegister, msp430.ModeIndexed,
		access{cycles: 4, fetch: []int{1, 4}, dstRead: 2, dstWrite: 4}},
	{msp430.FormatTwoOperand, msp430.ModeConstGen, msp430.ModeIndexed,
		access{cycles: 4, fetch: []int{1, 4}, dstRead: 2, dstWrite: 4}},
	{msp430.FormatTwoOperand, msp430.ModeIndirect, msp430.ModeIndexed,
		access{cycles: 5, fetch: []int{1, 5}, src: 1, dstRead: 3, dstWrite: 5}},
	{msp430.FormatTwoOperand, msp430.ModeIndirectAutoInc, msp430.ModeIndexed,
		access{cycles: 5, fetch: []int{1, 5}, src: 1, dstRead: 3, dstWrite: 5}},
	{msp430.FormatTwoOperand, msp430.ModeImmediate, msp430.ModeIndexed,
		access{cycles: 5, fetch: []int{1, 2, 5}, dstRead: 3, dstWrite: 5}},
	{msp430.FormatTwoOperand, msp430.ModeIndexed, msp430.ModeIndexed,
		access{cycles: 6, fetch: []int{1, 2, 6}, src: 2, dstRead: 4, dstWrite: 6}},

	{msp430.FormatOneOperand, msp430.ModeNone, msp430.ModeRegister, access{cycles: 1, fetch: []int{1}}},
	{msp430.FormatOneOperand, msp430.ModeNone, msp430.ModeIndirect,
		access{cycles: 3, fetch: []int{3}, dstRead: 1, dstWrite: 3}},
	{msp430.FormatOneOperand, msp430.ModeNone, msp430.ModeIndirectAutoInc,
		access{cycles: 3, fetch: []int{3}, dstRead: 1, dstWrite: 3}},
	{msp430.FormatOneOperand, msp430.ModeNone, msp430.ModeIndexed,
		access{cycles: 4, fetch: []int{1, 4}, dstRead: 2, dstWrite: 4}},
}

// fixed are the classes of control-flow and stack instructions, which do
// not depend on the regions of their operands. Opcodes missing here and
// from rules were never characterized.
var fixed = map[string]Class{
	"PUSH16r": "3 | 000 | 001 | 001",
	"CALLr":   "4 | 0000 | 0001 | 1001",
	"CALLi":   "5 | 00000 | 00001 | 11001",
	"JMP":     "2 | 00 | 00 | 11",
	"JCC":     "2 | 00 | 00 | 11",
	"RET":     "3 | 000 | 100 | 000",
	"RETI":    "5 | 00000 | 10000 | 00000",
	"Bi":      "3 | 000 | 000 | 001",
	"Br":      NoClass,
	"Bm":      NoClass,
}

var aluRules = func() map[[3]uint8]access {
	m := make(map[[3]uint8]access, len(rules))
	for _, r := range rules {
		m[[3]uint8{uint8(r.format), uint8(r.src), uint8(r.dst)}] = r.access
	}

	return m
}()

// classOf evaluates the rules for one opcode and region pair.
func classOf(d *msp430.Desc, p Pair) Class {
	if c, ok := fixed[d.Name]; ok {
		return c
	}

	if d.Is(msp430.FlagPseudo) {
		return NoClass
	}

	if d.Is(msp430.FlagPush) || d.Is(msp430.FlagCall) || d.Is(msp430.FlagBranch) {
		return SimulationFails
	}

	acc, ok := aluRules[[3]uint8{uint8(d.Format), uint8(d.Src.Canonical()), uint8(d.Dst.Canonical())}]
	if !ok {
		return SimulationFails
	}

	if d.Format == msp430.FormatTwoOperand && !d.Is(msp430.FlagReadsDst) {
		acc.dstRead = 0
	}

	t := NewTrace(acc.cycles)
	for _, f := range acc.fetch {
		t.Program[f-1] = true
	}

	t.mark(p.Src, acc.src)
	t.mark(p.Dst, acc.dstRead)
	t.mark(p.Dst, acc.dstWrite)

	c := t.Class()
	if _, ok := CodeOf(c); !ok {
		return SimulationFails
	}

	return c
}

// mark records an access in a cycle. A program-memory access that would
// collide with a fetch is served in the next free cycle.
func (t Trace) mark(r msp430.Region, cycle int) {
	if cycle == 0 {
		return
	}

	switch r {
	case msp430.RegionPeripheral:
		t.Peripheral[cycle-1] = true
	case msp430.RegionData:
		t.Data[cycle-1] = true
	case msp430.RegionProgram:
		for cycle < t.Cycles && t.Program[cycle-1] {
			cycle++
		}

		t.Program[cycle-1] = true
	}
}
