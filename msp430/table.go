package msp430

import "strings"

type aluOp struct {
	mnemonic  string
	readsDst  bool
	writesDst bool
	defsSR    bool
	usesSR    bool
	byteForm  bool
}

var twoOperandOps = []aluOp{
	{"mov", false, true, false, false, true},
	{"add", true, true, true, false, true},
	{"addc", true, true, true, true, true},
	{"sub", true, true, true, false, true},
	{"subc", true, true, true, true, true},
	{"cmp", true, false, true, false, true},
	{"dadd", true, true, true, true, true},
	{"bit", true, false, true, false, true},
	{"bic", true, true, false, false, true},
	{"bis", true, true, false, false, true},
	{"xor", true, true, true, false, true},
	{"and", true, true, true, false, true},
}

var oneOperandOps = []aluOp{
	{"rra", true, true, true, false, true},
	{"rrc", true, true, true, true, true},
	{"swpb", true, true, false, false, false},
	{"sxt", true, true, true, false, false},
}

var (
	twoOperandSrc = []Mode{
		ModeRegister, ModeIndexed, ModeIndirect,
		ModeIndirectAutoInc, ModeImmediate, ModeConstGen,
	}
	twoOperandDst = []Mode{ModeRegister, ModeIndexed}
	oneOperandDst = []Mode{
		ModeRegister, ModeIndexed, ModeIndirect, ModeIndirectAutoInc,
	}
	pushModes = []Mode{
		ModeRegister, ModeIndexed, ModeIndirect,
		ModeIndirectAutoInc, ModeImmediate, ModeConstGen,
	}
	callModes = []Mode{
		ModeRegister, ModeIndexed, ModeIndirect,
		ModeIndirectAutoInc, ModeImmediate,
	}
	branchModes = []Mode{ModeRegister, ModeIndexed, ModeImmediate}
)

func buildDescs() []Desc {
	ds := []Desc{{Name: "INVALID"}}

	for _, op := range twoOperandOps {
		for _, byteOp := range []bool{false, true} {
			if byteOp && !op.byteForm {
				continue
			}

			for _, dst := range twoOperandDst {
				for _, src := range twoOperandSrc {
					ds = append(ds, twoOperandDesc(op, byteOp, src, dst))
				}
			}
		}
	}

	for _, op := range oneOperandOps {
		for _, byteOp := range []bool{false, true} {
			if byteOp && !op.byteForm {
				continue
			}

			for _, m := range oneOperandDst {
				ds = append(ds, oneOperandDesc(op, byteOp, m))
			}
		}
	}

	for _, m := range pushModes {
		ds = append(ds, Desc{
			Name:         opcodeName("push", false, ModeNone, m),
			Mnemonic:     "push",
			Format:       FormatOneOperand,
			Dst:          m,
			Cycles:       pushCycles(m),
			Size:         2 + 2*m.ExtensionWords(),
			Flags:        FlagPush,
			ImplicitDefs: []Reg{SP},
			ImplicitUses: []Reg{SP},
		})
	}

	for _, m := range callModes {
		ds = append(ds, Desc{
			Name:         opcodeName("call", false, ModeNone, m),
			Mnemonic:     "call",
			Format:       FormatOneOperand,
			Dst:          m,
			Cycles:       callCycles(m),
			Size:         2 + 2*m.ExtensionWords(),
			Flags:        FlagCall,
			ImplicitDefs: append([]Reg{SP, SR}, CallClobbered...),
			ImplicitUses: append([]Reg{SP}, ArgRegs...),
		})
	}

	for _, m := range branchModes {
		flags := FlagTerminator | FlagBranch
		if m != ModeImmediate {
			flags |= FlagIndirectBranch
		}

		ds = append(ds, Desc{
			Name:     opcodeName("br", false, ModeNone, m),
			Mnemonic: "br",
			Format:   FormatOneOperand,
			Dst:      m,
			Cycles:   branchCycles(m),
			Size:     2 + 2*m.ExtensionWords(),
			Flags:    flags,
		})
	}

	ds = append(ds,
		Desc{
			Name: "JMP", Mnemonic: "jmp", Format: FormatJump,
			Cycles: 2, Size: 2, Flags: FlagTerminator | FlagBranch,
		},
		Desc{
			Name: "JCC", Mnemonic: "j", Format: FormatJump,
			Cycles: 2, Size: 2,
			Flags:        FlagTerminator | FlagBranch | FlagConditional,
			ImplicitUses: []Reg{SR},
		},
		Desc{
			Name: "RET", Mnemonic: "ret", Format: FormatOneOperand,
			Cycles: 3, Size: 2, Flags: FlagTerminator | FlagReturn,
			ImplicitDefs: []Reg{SP}, ImplicitUses: []Reg{SP},
		},
		Desc{
			Name: "RETI", Mnemonic: "reti", Format: FormatOneOperand,
			Cycles: 5, Size: 2, Flags: FlagTerminator | FlagReturn,
			ImplicitDefs: []Reg{SP, SR}, ImplicitUses: []Reg{SP},
		},
	)

	for _, p := range []struct {
		name  string
		flags Flag
		defs  []Reg
	}{
		{"ADJCALLSTACKDOWN", FlagPseudo, []Reg{SP}},
		{"ADJCALLSTACKUP", FlagPseudo, []Reg{SP}},
		{"IMPLICIT_DEF", FlagPseudo, nil},
		{"KILL", FlagPseudo, nil},
		{"SECURE_ENTER", FlagPseudo | FlagSecureMarker, nil},
		{"SECURE_EXIT", FlagPseudo | FlagSecureMarker, nil},
	} {
		d := Desc{
			Name:         p.name,
			Mnemonic:     strings.ToLower(p.name),
			Format:       FormatPseudo,
			Flags:        p.flags,
			ImplicitDefs: p.defs,
		}
		if p.defs != nil {
			d.ImplicitUses = p.defs
		}

		ds = append(ds, d)
	}

	return ds
}

func twoOperandDesc(op aluOp, byteOp bool, src, dst Mode) Desc {
	d := Desc{
		Name:     opcodeName(op.mnemonic, byteOp, src, dst),
		Mnemonic: op.mnemonic,
		Byte:     byteOp,
		Format:   FormatTwoOperand,
		Src:      src,
		Dst:      dst,
		Cycles:   twoOperandCycles(src, dst),
		Size:     2 + 2*(src.ExtensionWords()+dst.ExtensionWords()),
	}
	d.Flags, d.ImplicitDefs, d.ImplicitUses = aluFlags(op)

	return d
}

func oneOperandDesc(op aluOp, byteOp bool, m Mode) Desc {
	d := Desc{
		Name:     opcodeName(op.mnemonic, byteOp, ModeNone, m),
		Mnemonic: op.mnemonic,
		Byte:     byteOp,
		Format:   FormatOneOperand,
		Dst:      m,
		Cycles:   oneOperandCycles(m),
		Size:     2 + 2*m.ExtensionWords(),
	}
	d.Flags, d.ImplicitDefs, d.ImplicitUses = aluFlags(op)

	return d
}

func aluFlags(op aluOp) (Flag, []Reg, []Reg) {
	var (
		flags      Flag
		defs, uses []Reg
	)

	if op.readsDst {
		flags |= FlagReadsDst
	}

	if op.writesDst {
		flags |= FlagWritesDst
	}

	if op.defsSR {
		defs = []Reg{SR}
	}

	if op.usesSR {
		uses = []Reg{SR}
	}

	return flags, defs, uses
}

func twoOperandCycles(src, dst Mode) int {
	if dst == ModeRegister {
		switch src {
		case ModeRegister, ModeConstGen:
			return 1
		case ModeIndirect, ModeIndirectAutoInc, ModeImmediate:
			return 2
		}

		return 3
	}

	switch src {
	case ModeRegister, ModeConstGen:
		return 4
	case ModeIndirect, ModeIndirectAutoInc, ModeImmediate:
		return 5
	}

	return 6
}

func oneOperandCycles(m Mode) int {
	switch m {
	case ModeRegister:
		return 1
	case ModeIndirect, ModeIndirectAutoInc:
		return 3
	}

	return 4
}

func pushCycles(m Mode) int {
	switch m {
	case ModeRegister, ModeConstGen:
		return 3
	case ModeIndexed:
		return 5
	}

	return 4
}

func callCycles(m Mode) int {
	switch m {
	case ModeRegister, ModeIndirect:
		return 4
	}

	return 5
}

func branchCycles(m Mode) int {
	if m == ModeRegister {
		return 2
	}

	return 3
}
