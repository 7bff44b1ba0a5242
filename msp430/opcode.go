package msp430

import (
	"fmt"
	"strings"
)

// Format is the encoding family of an instruction.
type Format uint8

// Instruction formats.
const (
	FormatNone Format = iota
	FormatTwoOperand
	FormatOneOperand
	FormatJump
	FormatPseudo
)

func (f Format) String() string {
	switch f {
	case FormatTwoOperand:
		return "two-operand"
	case FormatOneOperand:
		return "one-operand"
	case FormatJump:
		return "jump"
	case FormatPseudo:
		return "pseudo"
	}

	return "none"
}

// Flag is an intrinsic property of an opcode.
type Flag uint16

// Opcode flags.
const (
	FlagReadsDst Flag = 1 << iota
	FlagWritesDst
	FlagTerminator
	FlagBranch
	FlagConditional
	FlagIndirectBranch
	FlagReturn
	FlagCall
	FlagPush
	FlagPseudo
	FlagSecureMarker
)

// Desc is the descriptor of one opcode.
type Desc struct {
	Name     string
	Mnemonic string
	Byte     bool
	Format   Format
	Src      Mode
	Dst      Mode
	Cycles   int
	Size     int
	Flags    Flag

	ImplicitDefs []Reg
	ImplicitUses []Reg
}

// Is reports whether all of f are set.
func (d *Desc) Is(f Flag) bool {
	return d.Flags&f == f
}

// Opcode indexes the descriptor table. The zero value is invalid.
type Opcode uint16

// OpInvalid marks an unset opcode.
const OpInvalid Opcode = 0

var (
	descs  = buildDescs()
	byName = indexDescs(descs)
)

// Well-known opcodes used by the passes.
var (
	JMP              = mustOpcode("JMP")
	JCC              = mustOpcode("JCC")
	RET              = mustOpcode("RET")
	RETI             = mustOpcode("RETI")
	MOV16rc          = mustOpcode("MOV16rc")
	MOV16ri          = mustOpcode("MOV16ri")
	MOV16rr          = mustOpcode("MOV16rr")
	SecureEnter      = mustOpcode("SECURE_ENTER")
	SecureExit       = mustOpcode("SECURE_EXIT")
	AdjCallStackDown = mustOpcode("ADJCALLSTACKDOWN")
	AdjCallStackUp   = mustOpcode("ADJCALLSTACKUP")
	ImplicitDef      = mustOpcode("IMPLICIT_DEF")
	Kill             = mustOpcode("KILL")
)

// Desc returns the descriptor of the opcode.
func (o Opcode) Desc() *Desc {
	if int(o) >= len(descs) || o == OpInvalid {
		panic(fmt.Sprintf("invalid opcode %d", o))
	}

	return &descs[o]
}

// Valid reports whether the opcode is in the table.
func (o Opcode) Valid() bool {
	return o != OpInvalid && int(o) < len(descs)
}

func (o Opcode) String() string {
	if !o.Valid() {
		return "INVALID"
	}

	return descs[o].Name
}

// Opcodes returns every opcode in table order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(descs)-1)
	for i := 1; i < len(descs); i++ {
		ops = append(ops, Opcode(i))
	}

	return ops
}

// ByName looks up an opcode by its descriptor name.
func ByName(name string) (Opcode, bool) {
	op, ok := byName[name]
	return op, ok
}

// Lookup selects the opcode for a mnemonic and operand modes. One-operand
// instructions pass their operand as dst; jumps and pseudos pass
// ModeNone for both.
func Lookup(mnemonic string, byteOp bool, src, dst Mode) (Opcode, bool) {
	name := opcodeName(strings.ToLower(mnemonic), byteOp, src, dst)
	return ByName(name)
}

func mustOpcode(name string) Opcode {
	op, ok := byName[name]
	if !ok {
		panic(fmt.Sprintf("opcode %s is not in the descriptor table", name))
	}

	return op
}

func indexDescs(ds []Desc) map[string]Opcode {
	m := make(map[string]Opcode, len(ds))
	for i := 1; i < len(ds); i++ {
		m[ds[i].Name] = Opcode(i)
	}

	return m
}

func width(byteOp bool) string {
	if byteOp {
		return "8"
	}

	return "16"
}

func opcodeName(mn string, byteOp bool, src, dst Mode) string {
	upper := strings.ToUpper(mn)

	switch {
	case mn == "call":
		return "CALL" + string(dst.Letter())
	case mn == "br":
		return "B" + string(dst.Letter())
	case src == ModeNone && dst == ModeNone:
		return upper
	case src == ModeNone:
		return upper + width(byteOp) + string(dst.Letter())
	}

	return upper + width(byteOp) + string(dst.Letter()) + string(src.Letter())
}
