package msp430

// Mode is an operand addressing mode.
type Mode uint8

// Addressing modes. Symbolic and absolute operands share the indexed
// encoding; immediates that the constant generator can produce are
// encoded without an extension word.
const (
	ModeNone Mode = iota
	ModeRegister
	ModeIndexed
	ModeSymbolic
	ModeAbsolute
	ModeIndirect
	ModeIndirectAutoInc
	ModeImmediate
	ModeConstGen
)

var modeNames = [...]string{
	ModeNone:            "none",
	ModeRegister:        "register",
	ModeIndexed:         "indexed",
	ModeSymbolic:        "symbolic",
	ModeAbsolute:        "absolute",
	ModeIndirect:        "indirect",
	ModeIndirectAutoInc: "indirect-autoincrement",
	ModeImmediate:       "immediate",
	ModeConstGen:        "constant-generator",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}

	return "mode?"
}

// IsMemory reports whether an operand in this mode references memory.
func (m Mode) IsMemory() bool {
	switch m {
	case ModeIndexed, ModeSymbolic, ModeAbsolute,
		ModeIndirect, ModeIndirectAutoInc:
		return true
	}

	return false
}

// Letter is the operand letter used in opcode names.
func (m Mode) Letter() byte {
	switch m {
	case ModeRegister:
		return 'r'
	case ModeIndexed, ModeSymbolic, ModeAbsolute:
		return 'm'
	case ModeIndirect:
		return 'n'
	case ModeIndirectAutoInc:
		return 'p'
	case ModeImmediate:
		return 'i'
	case ModeConstGen:
		return 'c'
	}

	return '?'
}

// Canonical folds symbolic and absolute into indexed.
func (m Mode) Canonical() Mode {
	switch m {
	case ModeSymbolic, ModeAbsolute:
		return ModeIndexed
	}

	return m
}

// As returns the source addressing bits of the mode.
func (m Mode) As() uint8 {
	switch m {
	case ModeIndexed, ModeSymbolic, ModeAbsolute:
		return 1
	case ModeIndirect:
		return 2
	case ModeIndirectAutoInc, ModeImmediate:
		return 3
	}

	return 0
}

// Ad returns the destination addressing bit. Only register and the
// indexed family can be destinations.
func (m Mode) Ad() (uint8, bool) {
	switch m {
	case ModeRegister:
		return 0, true
	case ModeIndexed, ModeSymbolic, ModeAbsolute:
		return 1, true
	}

	return 0, false
}

// ExtensionWords is the number of words the operand adds to an
// instruction.
func (m Mode) ExtensionWords() int {
	switch m {
	case ModeIndexed, ModeSymbolic, ModeAbsolute, ModeImmediate:
		return 1
	}

	return 0
}

// ConstGen returns the register and As bits that produce v, if the
// constant generator can.
func ConstGen(v int64) (Reg, uint8, bool) {
	switch v {
	case 0:
		return CG, 0, true
	case 1:
		return CG, 1, true
	case 2:
		return CG, 2, true
	case -1, 0xFFFF:
		return CG, 3, true
	case 4:
		return SR, 2, true
	case 8:
		return SR, 3, true
	}

	return NoReg, 0, false
}
