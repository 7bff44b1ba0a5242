package mir

import (
	"fmt"
	"strconv"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// OperandKind tells what an operand holds.
type OperandKind uint8

// Operand kinds.
const (
	KindNone OperandKind = iota
	KindReg
	KindImm
	KindMem
	KindBlock
	KindSymbol
	KindCond
)

// Operand is one instruction operand. Memory operands carry the region
// they are known to reference, RegionUnknown when that is left to the
// region resolver.
type Operand struct {
	Kind   OperandKind
	Mode   msp430.Mode
	Reg    msp430.Reg
	Imm    int64
	Sym    string
	Block  BlockID
	Cond   msp430.Cond
	Region msp430.Region
}

// RegOp is a register operand.
func RegOp(r msp430.Reg) Operand {
	return Operand{Kind: KindReg, Mode: msp430.ModeRegister, Reg: r}
}

// ImmOp is an immediate that always takes an extension word.
func ImmOp(v int64) Operand {
	return Operand{Kind: KindImm, Mode: msp430.ModeImmediate, Reg: msp430.PC, Imm: v}
}

// ConstOp is an immediate, encoded through the constant generator when
// the value allows it.
func ConstOp(v int64) Operand {
	if r, _, ok := msp430.ConstGen(v); ok {
		return Operand{Kind: KindImm, Mode: msp430.ModeConstGen, Reg: r, Imm: v}
	}

	return ImmOp(v)
}

// SymImmOp is the address of a symbol used as an immediate, as in
// "call #f".
func SymImmOp(sym string) Operand {
	return Operand{Kind: KindSymbol, Mode: msp430.ModeImmediate, Reg: msp430.PC, Sym: sym}
}

// IndexedOp is off(base).
func IndexedOp(off int64, base msp430.Reg) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeIndexed, Reg: base, Imm: off}
}

// AbsOp is &addr.
func AbsOp(addr uint16) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeAbsolute, Reg: msp430.SR, Imm: int64(addr)}
}

// AbsSymOp is &sym.
func AbsSymOp(sym string) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeAbsolute, Reg: msp430.SR, Sym: sym}
}

// SymbolicOp is a PC-relative reference to addr.
func SymbolicOp(addr uint16) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeSymbolic, Reg: msp430.PC, Imm: int64(addr)}
}

// SymbolicSymOp is a PC-relative reference to a named object.
func SymbolicSymOp(sym string) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeSymbolic, Reg: msp430.PC, Sym: sym}
}

// IndirectOp is @r.
func IndirectOp(r msp430.Reg) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeIndirect, Reg: r}
}

// AutoIncOp is @r+.
func AutoIncOp(r msp430.Reg) Operand {
	return Operand{Kind: KindMem, Mode: msp430.ModeIndirectAutoInc, Reg: r}
}

// BlockOp is a branch target.
func BlockOp(b BlockID) Operand {
	return Operand{Kind: KindBlock, Block: b}
}

// CondOp is the condition of a conditional jump.
func CondOp(c msp430.Cond) Operand {
	return Operand{Kind: KindCond, Cond: c}
}

// In returns a copy of the operand tagged with a region.
func (o Operand) In(r msp430.Region) Operand {
	o.Region = r
	return o
}

// IsMemory reports whether the operand references memory.
func (o Operand) IsMemory() bool {
	return o.Kind == KindMem
}

// Address returns the constant address of an absolute or symbolic
// operand.
func (o Operand) Address() (uint16, bool) {
	if o.Kind != KindMem || o.Sym != "" {
		return 0, false
	}

	switch o.Mode {
	case msp430.ModeAbsolute, msp430.ModeSymbolic:
		return uint16(o.Imm), true
	}

	return 0, false
}

// MemKey names the memory location of a statically addressed operand.
// Pointer-based operands have no key.
func (o Operand) MemKey() (string, bool) {
	if o.Kind != KindMem {
		return "", false
	}

	switch o.Mode {
	case msp430.ModeAbsolute, msp430.ModeSymbolic:
	default:
		return "", false
	}

	if o.Sym != "" {
		return o.Sym, true
	}

	return AddrKey(uint16(o.Imm)), true
}

// AddrKey is the memory key of a numeric address.
func AddrKey(addr uint16) string {
	return fmt.Sprintf("0x%04x", addr)
}

// BaseReg returns the register a memory operand dereferences.
func (o Operand) BaseReg() (msp430.Reg, bool) {
	if o.Kind != KindMem {
		return msp430.NoReg, false
	}

	switch o.Mode {
	case msp430.ModeIndexed, msp430.ModeIndirect, msp430.ModeIndirectAutoInc:
		return o.Reg, true
	}

	return msp430.NoReg, false
}

func (o Operand) format(names func(BlockID) string) string {
	var s string

	switch o.Kind {
	case KindReg:
		s = o.Reg.String()
	case KindImm:
		s = "#" + formatNum(o.Imm)
	case KindSymbol:
		s = "#" + o.Sym
	case KindBlock:
		s = names(o.Block)
		if o.Mode == msp430.ModeImmediate {
			s = "#" + s
		}
	case KindCond:
		s = o.Cond.String()
	case KindMem:
		s = o.formatMem()
	default:
		s = "?"
	}

	if o.Region != msp430.RegionUnknown {
		s += "[" + o.Region.String() + "]"
	}

	return s
}

func (o Operand) formatMem() string {
	target := o.Sym
	if target == "" {
		target = fmt.Sprintf("0x%04x", uint16(o.Imm))
	}

	switch o.Mode {
	case msp430.ModeIndexed:
		return formatNum(o.Imm) + "(" + o.Reg.String() + ")"
	case msp430.ModeSymbolic:
		return target
	case msp430.ModeAbsolute:
		return "&" + target
	case msp430.ModeIndirect:
		return "@" + o.Reg.String()
	case msp430.ModeIndirectAutoInc:
		return "@" + o.Reg.String() + "+"
	}

	return "?"
}

func (o Operand) String() string {
	return o.format(defaultBlockName)
}

func formatNum(v int64) string {
	if v > 9 || v < -9 {
		if v < 0 {
			return "-0x" + strconv.FormatInt(-v, 16)
		}

		return "0x" + strconv.FormatInt(v, 16)
	}

	return strconv.FormatInt(v, 10)
}

func defaultBlockName(b BlockID) string {
	return fmt.Sprintf("bb%d", int(b))
}
