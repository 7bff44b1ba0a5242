package mir

import (
	"strings"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// InstrID identifies an instruction within its function.
type InstrID int

// Reserved instruction ids.
const (
	NoInstr InstrID = -1
	// LiveIn stands for the value a register holds on function entry.
	LiveIn InstrID = -2
)

// Instr is a machine instruction. Operands of a two-operand instruction
// are in assembly order: source first. Instructions are not edited once
// created; passes build replacements instead.
type Instr struct {
	ID  InstrID
	Op  msp430.Opcode
	Ops []Operand

	// ShadowOf links a compensation instruction to the real instruction
	// whose timing it reproduces on the other side of a branch.
	ShadowOf InstrID

	// PadOf links padding appended after an instruction to that
	// instruction.
	PadOf InstrID
}

// Desc returns the opcode descriptor.
func (in *Instr) Desc() *msp430.Desc {
	return in.Op.Desc()
}

// IsShadow reports whether the instruction mimics another one.
func (in *Instr) IsShadow() bool { return in.ShadowOf != NoInstr }

// IsPad reports whether the instruction pads another one.
func (in *Instr) IsPad() bool { return in.PadOf != NoInstr }

// IsPseudo reports whether the instruction emits no code.
func (in *Instr) IsPseudo() bool { return in.Desc().Is(msp430.FlagPseudo) }

// IsTerminator reports whether the instruction ends a block.
func (in *Instr) IsTerminator() bool { return in.Desc().Is(msp430.FlagTerminator) }

// IsBranch reports whether the instruction transfers control to a block.
func (in *Instr) IsBranch() bool { return in.Desc().Is(msp430.FlagBranch) }

// IsConditional reports whether the instruction is a conditional jump.
func (in *Instr) IsConditional() bool { return in.Desc().Is(msp430.FlagConditional) }

// IsIndirectBranch reports whether the branch target is computed.
func (in *Instr) IsIndirectBranch() bool { return in.Desc().Is(msp430.FlagIndirectBranch) }

// IsReturn reports whether the instruction leaves the function.
func (in *Instr) IsReturn() bool { return in.Desc().Is(msp430.FlagReturn) }

// IsCall reports whether the instruction calls a subroutine.
func (in *Instr) IsCall() bool { return in.Desc().Is(msp430.FlagCall) }

// Cycles is the instruction latency.
func (in *Instr) Cycles() int { return in.Desc().Cycles }

// Src returns the source operand of a two-operand instruction.
func (in *Instr) Src() *Operand {
	d := in.Desc()
	if d.Format != msp430.FormatTwoOperand || len(in.Ops) < 2 {
		return nil
	}

	return &in.Ops[0]
}

// Dst returns the destination operand. One-operand instructions report
// their only operand here.
func (in *Instr) Dst() *Operand {
	d := in.Desc()

	switch d.Format {
	case msp430.FormatTwoOperand:
		if len(in.Ops) >= 2 {
			return &in.Ops[1]
		}
	case msp430.FormatOneOperand, msp430.FormatPseudo:
		if len(in.Ops) >= 1 {
			return &in.Ops[0]
		}
	}

	return nil
}

// Target returns the block a direct branch jumps to.
func (in *Instr) Target() (BlockID, bool) {
	if !in.IsBranch() || in.IsIndirectBranch() {
		return NoBlock, false
	}

	for _, o := range in.Ops {
		if o.Kind == KindBlock {
			return o.Block, true
		}
	}

	return NoBlock, false
}

// Condition returns the condition code of a conditional jump.
func (in *Instr) Condition() msp430.Cond {
	for _, o := range in.Ops {
		if o.Kind == KindCond {
			return o.Cond
		}
	}

	return msp430.CondE
}

// Uses lists the registers the instruction reads.
func (in *Instr) Uses() []msp430.Reg {
	var regs []msp430.Reg

	d := in.Desc()

	if src := in.Src(); src != nil {
		regs = appendReadRegs(regs, src)
	}

	if dst := in.Dst(); dst != nil && d.Format != msp430.FormatPseudo {
		if dst.Kind == KindReg {
			readsReg := d.Format == msp430.FormatOneOperand || d.Is(msp430.FlagReadsDst)
			if readsReg {
				regs = append(regs, dst.Reg)
			}
		} else {
			regs = appendReadRegs(regs, dst)
		}
	}

	regs = append(regs, d.ImplicitUses...)

	return dedupRegs(regs)
}

// Defs lists the registers the instruction writes. Writes to the
// constant generator are discarded by the hardware and not reported.
func (in *Instr) Defs() []msp430.Reg {
	var regs []msp430.Reg

	d := in.Desc()

	if src := in.Src(); src != nil && src.Mode == msp430.ModeIndirectAutoInc {
		regs = append(regs, src.Reg)
	}

	if dst := in.Dst(); dst != nil {
		switch {
		case dst.Mode == msp430.ModeIndirectAutoInc:
			regs = append(regs, dst.Reg)
		case dst.Kind != KindReg:
		case in.Op == msp430.ImplicitDef:
			regs = append(regs, dst.Reg)
		case d.Format == msp430.FormatTwoOperand && d.Is(msp430.FlagWritesDst):
			regs = append(regs, dst.Reg)
		case d.Format == msp430.FormatOneOperand && d.Is(msp430.FlagWritesDst):
			regs = append(regs, dst.Reg)
		}
	}

	regs = append(regs, d.ImplicitDefs...)

	out := regs[:0]
	for _, r := range dedupRegs(regs) {
		if r != msp430.CG && r != msp430.PC {
			out = append(out, r)
		}
	}

	return out
}

// MemReads lists the memory operands the instruction loads from.
func (in *Instr) MemReads() []*Operand {
	var ops []*Operand

	d := in.Desc()

	if src := in.Src(); src != nil && src.IsMemory() {
		ops = append(ops, src)
	}

	if dst := in.Dst(); dst != nil && dst.IsMemory() {
		if d.Format != msp430.FormatTwoOperand || d.Is(msp430.FlagReadsDst) {
			ops = append(ops, dst)
		}
	}

	return ops
}

// MemWrites lists the memory operands the instruction stores to.
func (in *Instr) MemWrites() []*Operand {
	d := in.Desc()
	if !d.Is(msp430.FlagWritesDst) {
		return nil
	}

	if dst := in.Dst(); dst != nil && dst.IsMemory() {
		return []*Operand{dst}
	}

	return nil
}

// Format renders the instruction in assembly syntax, naming blocks
// through names.
func (in *Instr) Format(names func(BlockID) string) string {
	d := in.Desc()

	mn := d.Mnemonic
	if in.Op == msp430.JCC {
		mn = in.Condition().Mnemonic()
	}

	if d.Byte {
		mn += ".b"
	}

	var ops []string

	for _, o := range in.Ops {
		if o.Kind == KindCond {
			continue
		}

		ops = append(ops, o.format(names))
	}

	if len(ops) == 0 {
		return mn
	}

	return mn + " " + strings.Join(ops, ", ")
}

func (in *Instr) String() string {
	return in.Format(defaultBlockName)
}

func appendReadRegs(regs []msp430.Reg, o *Operand) []msp430.Reg {
	switch o.Kind {
	case KindReg:
		return append(regs, o.Reg)
	case KindMem:
		if r, ok := o.BaseReg(); ok {
			return append(regs, r)
		}
	}

	return regs
}

func dedupRegs(regs []msp430.Reg) []msp430.Reg {
	var seen [msp430.NumRegs]bool

	out := regs[:0]
	for _, r := range regs {
		if !r.Valid() || seen[r] {
			continue
		}

		seen[r] = true
		out = append(out, r)
	}

	return out
}
