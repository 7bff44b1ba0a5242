package msp430

import "strings"

// Cond is a conditional jump condition code.
type Cond uint8

// Condition codes, in encoding order.
const (
	CondE Cond = iota
	CondNE
	CondHS
	CondLO
	CondGE
	CondL
	CondN
)

var condMnemonics = [...]string{
	CondE:  "jeq",
	CondNE: "jne",
	CondHS: "jhs",
	CondLO: "jlo",
	CondGE: "jge",
	CondL:  "jl",
	CondN:  "jn",
}

var condAliases = map[string]Cond{
	"jeq": CondE,
	"jz":  CondE,
	"jne": CondNE,
	"jnz": CondNE,
	"jhs": CondHS,
	"jc":  CondHS,
	"jlo": CondLO,
	"jnc": CondLO,
	"jge": CondGE,
	"jl":  CondL,
	"jn":  CondN,
}

// Mnemonic is the jump mnemonic for the condition.
func (c Cond) Mnemonic() string {
	if int(c) < len(condMnemonics) {
		return condMnemonics[c]
	}

	return "j?"
}

func (c Cond) String() string {
	return strings.TrimPrefix(c.Mnemonic(), "j")
}

// ParseCondJump maps a conditional jump mnemonic to its condition.
func ParseCondJump(mnemonic string) (Cond, bool) {
	c, ok := condAliases[strings.ToLower(mnemonic)]
	return c, ok
}

// Inverse returns the opposite condition. JN has none.
func (c Cond) Inverse() (Cond, bool) {
	switch c {
	case CondE:
		return CondNE, true
	case CondNE:
		return CondE, true
	case CondHS:
		return CondLO, true
	case CondLO:
		return CondHS, true
	case CondGE:
		return CondL, true
	case CondL:
		return CondGE, true
	}

	return c, false
}

// Flags is the subset of the status register the conditions read.
type Flags struct {
	Z, N, C, V bool
}

// Holds evaluates the condition against f.
func (c Cond) Holds(f Flags) bool {
	switch c {
	case CondE:
		return f.Z
	case CondNE:
		return !f.Z
	case CondHS:
		return f.C
	case CondLO:
		return !f.C
	case CondGE:
		return f.N == f.V
	case CondL:
		return f.N != f.V
	case CondN:
		return f.N
	}

	return false
}

// SubFlags computes the flags of the 16-bit subtraction a - b, as set by
// SUB and CMP.
func SubFlags(a, b uint16) (uint16, Flags) {
	res := a - b
	sa, sb, sr := int16(a) < 0, int16(b) < 0, int16(res) < 0

	return res, Flags{
		Z: res == 0,
		N: sr,
		C: a >= b,
		V: sa != sb && sr != sa,
	}
}

// AddFlags computes the flags of the 16-bit addition a + b.
func AddFlags(a, b uint16) (uint16, Flags) {
	wide := uint32(a) + uint32(b)
	res := uint16(wide)
	sa, sb, sr := int16(a) < 0, int16(b) < 0, int16(res) < 0

	return res, Flags{
		Z: res == 0,
		N: sr,
		C: wide > 0xFFFF,
		V: sa == sb && sr != sa,
	}
}
