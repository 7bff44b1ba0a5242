package nemesis

import (
	"fmt"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// Sensitivity is the result of taint propagation: which instructions
// compute on secrets, and which memory locations may hold them.
type Sensitivity struct {
	Instrs map[mir.InstrID]bool
	Mem    map[string]bool
	LiveIn map[msp430.Reg]bool
	// AnyMem is set once a secret is stored through an unknown pointer.
	// Every load may then read it.
	AnyMem bool
}

// Tainted reports whether definition id of register r carries a secret.
func (s *Sensitivity) Tainted(id mir.InstrID, r msp430.Reg) bool {
	if id == mir.LiveIn {
		return s.LiveIn[r]
	}

	return s.Instrs[id]
}

// memKey names the location a memory operand accesses. Stack slots are
// keyed by their offset from SP.
func memKey(o *mir.Operand) (string, bool) {
	if k, ok := o.MemKey(); ok {
		return k, true
	}

	if base, ok := o.BaseReg(); ok && base == msp430.SP {
		switch o.Mode {
		case msp430.ModeIndexed:
			return fmt.Sprintf("sp%+d", o.Imm), true
		case msp430.ModeIndirect, msp430.ModeIndirectAutoInc:
			return "sp+0", true
		}
	}

	return "", false
}

// propagateTaint marks every instruction that reads a secret, directly or
// through registers and memory, until nothing changes. Control
// dependence is not tracked: a value written under a secret branch is not
// tainted by the branch itself.
func propagateTaint(fn *mir.Function, rd *ReachingDefs, secrets mir.Secrets) *Sensitivity {
	s := &Sensitivity{
		Instrs: make(map[mir.InstrID]bool),
		Mem:    make(map[string]bool),
		LiveIn: make(map[msp430.Reg]bool),
	}

	for _, r := range secrets.Regs {
		s.LiveIn[r] = true
	}

	for _, k := range secrets.Mem {
		s.Mem[mir.NormalizeMemKey(k)] = true
	}

	for changed := true; changed; {
		changed = false

		for _, bid := range fn.Layout {
			for _, in := range fn.Blocks[bid].Instrs {
				if !s.reads(rd, in) {
					continue
				}

				if !s.Instrs[in.ID] {
					s.Instrs[in.ID] = true
					changed = true
				}

				for _, w := range in.MemWrites() {
					k, ok := memKey(w)
					switch {
					case !ok && !s.AnyMem:
						s.AnyMem = true
						changed = true
					case ok && !s.Mem[k]:
						s.Mem[k] = true
						changed = true
					}
				}
			}
		}
	}

	return s
}

func (s *Sensitivity) reads(rd *ReachingDefs, in *mir.Instr) bool {
	for _, r := range in.Uses() {
		for _, d := range rd.GetDefsBefore(in.ID, r) {
			if s.Tainted(d, r) {
				return true
			}
		}
	}

	for _, o := range in.MemReads() {
		if s.AnyMem {
			return true
		}

		if k, ok := memKey(o); ok && s.Mem[k] {
			return true
		}
	}

	return false
}

// secretBranch reports whether the conditional jump of b tests flags
// computed from a secret.
func (s *Sensitivity) secretBranch(rd *ReachingDefs, jcc *mir.Instr) bool {
	for _, d := range rd.GetDefsBefore(jcc.ID, msp430.SR) {
		if s.Tainted(d, msp430.SR) {
			return true
		}
	}

	return false
}
