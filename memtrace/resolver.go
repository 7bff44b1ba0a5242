package memtrace

import (
	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/mir"
)

// Resolver decides which region a memory operand references.
//
// An explicit region tag wins. Constant addresses go through the memory
// map, and so do pointer operands whose base register was loaded with a
// constant earlier in the same block. Stack operands are data. Anything
// else gets the conservative region.
type Resolver struct {
	Map          msp430.MemoryMap
	Conservative msp430.Region
}

// NewResolver returns a resolver that falls back to data.
func NewResolver(mm msp430.MemoryMap) Resolver {
	return Resolver{Map: mm, Conservative: msp430.RegionData}
}

// Operand returns the region of operand o of the instruction at index i
// of b. Operands that do not reference memory are data.
func (r Resolver) Operand(b *mir.Block, i int, o *mir.Operand) msp430.Region {
	if o == nil || !o.IsMemory() {
		return msp430.RegionData
	}

	if o.Region != msp430.RegionUnknown {
		return o.Region
	}

	if addr, ok := o.Address(); ok {
		return r.lookup(addr)
	}

	base, ok := o.BaseReg()
	if !ok {
		return r.conservative()
	}

	if base == msp430.SP {
		return msp430.RegionData
	}

	if b == nil {
		return r.conservative()
	}

	v, ok := constBefore(b, i, base)
	if !ok {
		return r.conservative()
	}

	if o.Mode == msp430.ModeIndexed {
		v += o.Imm
	}

	return r.lookup(uint16(v))
}

// Regions returns the source and destination regions of the instruction
// at index i of b.
func (r Resolver) Regions(b *mir.Block, i int) Pair {
	in := b.Instrs[i]

	return Pair{
		Src: r.Operand(b, i, in.Src()),
		Dst: r.Operand(b, i, in.Dst()),
	}
}

func (r Resolver) lookup(addr uint16) msp430.Region {
	if reg := r.Map.RegionOf(addr); reg != msp430.RegionUnknown {
		return reg
	}

	return r.conservative()
}

func (r Resolver) conservative() msp430.Region {
	if r.Conservative == msp430.RegionUnknown {
		return msp430.RegionData
	}

	return r.Conservative
}

// constBefore finds the constant a register holds before instruction i,
// looking back only within the block.
func constBefore(b *mir.Block, i int, reg msp430.Reg) (int64, bool) {
	for j := i - 1; j >= 0; j-- {
		in := b.Instrs[j]

		defines := false
		for _, d := range in.Defs() {
			if d == reg {
				defines = true
				break
			}
		}

		if !defines {
			continue
		}

		d := in.Desc()
		src := in.Src()

		if d.Mnemonic == "mov" && !d.Byte && src != nil && src.Kind == mir.KindImm {
			return src.Imm, true
		}

		return 0, false
	}

	return 0, false
}
