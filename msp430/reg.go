// Package msp430 describes the MSP430 target: registers, addressing modes,
// condition codes, the memory map and one descriptor per opcode.
//
// Opcode names follow the backend convention of a mnemonic, an operand
// width and one letter per operand, destination first:
//
//	ADD16rm   add x(Rn), Rd
//	MOV16mi   mov #imm, x(Rd)
//	RRA16n    rra @Rn
//
// Operand letters are r (register), m (indexed, symbolic or absolute),
// i (immediate), n (indirect), p (indirect autoincrement) and c
// (constant generator).
package msp430

import (
	"fmt"
	"strconv"
	"strings"
)

// Reg is one of the sixteen core registers.
type Reg int8

// The core registers. R3 doubles as the constant generator and discards
// writes, which makes it the destination of choice for no-op moves.
const (
	NoReg Reg = -1
	PC    Reg = 0
	SP    Reg = 1
	SR    Reg = 2
	CG    Reg = 3
	R4    Reg = 4
	R5    Reg = 5
	R6    Reg = 6
	R7    Reg = 7
	R8    Reg = 8
	R9    Reg = 9
	R10   Reg = 10
	R11   Reg = 11
	R12   Reg = 12
	R13   Reg = 13
	R14   Reg = 14
	R15   Reg = 15
)

// NumRegs is the number of register units tracked by the analyses.
const NumRegs = 16

// ArgRegs carry the first four arguments of a call.
var ArgRegs = []Reg{R12, R13, R14, R15}

// CallClobbered lists the registers a callee may overwrite.
var CallClobbered = []Reg{R11, R12, R13, R14, R15}

var regAliases = map[string]Reg{
	"pc": PC,
	"sp": SP,
	"sr": SR,
	"cg": CG,
}

// Valid reports whether r names a core register.
func (r Reg) Valid() bool {
	return r >= 0 && r < NumRegs
}

func (r Reg) String() string {
	switch r {
	case PC:
		return "pc"
	case SP:
		return "sp"
	case SR:
		return "sr"
	case NoReg:
		return "noreg"
	}

	if !r.Valid() {
		return fmt.Sprintf("reg(%d)", int(r))
	}

	return "r" + strconv.Itoa(int(r))
}

// ParseReg accepts r0..r15 and the pc, sp, sr and cg aliases.
func ParseReg(s string) (Reg, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if r, ok := regAliases[s]; ok {
		return r, true
	}

	if !strings.HasPrefix(s, "r") {
		return NoReg, false
	}

	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n >= NumRegs {
		return NoReg, false
	}

	return Reg(n), true
}
