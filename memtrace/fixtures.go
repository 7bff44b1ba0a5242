package memtrace

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// FixtureLabel is the block name jump and call fixtures refer to. A
// function parsing fixtures needs a block with this name.
const FixtureLabel = "L"

// form is one way to write an operand, with the instructions that set up
// its base register.
type form struct {
	setup []string
	text  string
	base  msp430.Reg
}

var baseRegs = []msp430.Reg{
	msp430.R4, msp430.R5, msp430.R6, msp430.R7, msp430.R8, msp430.R9,
	msp430.R10, msp430.R11, msp430.R12, msp430.R13, msp430.R14, msp430.R15,
}

// operandForms lists operands of mode m whose memory accesses land at
// addr.
func operandForms(m msp430.Mode, addr uint16, regs []msp430.Reg) []form {
	var out []form

	switch m {
	case msp430.ModeRegister:
		for _, r := range regs {
			out = append(out, form{text: r.String(), base: r})
		}
	case msp430.ModeConstGen:
		for _, v := range []int{0, 1, 2, 4, 8, -1} {
			out = append(out, form{text: fmt.Sprintf("#%d", v), base: msp430.NoReg})
		}
	case msp430.ModeImmediate:
		out = append(out, form{text: "#0x1234", base: msp430.NoReg})
	case msp430.ModeIndirect, msp430.ModeIndirectAutoInc:
		suffix := ""
		if m == msp430.ModeIndirectAutoInc {
			suffix = "+"
		}

		for _, r := range regs {
			out = append(out, form{
				setup: []string{fmt.Sprintf("mov #0x%04x, %s", addr, r)},
				text:  "@" + r.String() + suffix,
				base:  r,
			})
		}
	case msp430.ModeIndexed:
		for _, r := range regs {
			out = append(out, form{
				setup: []string{fmt.Sprintf("mov #0x%04x, %s", addr-1, r)},
				text:  fmt.Sprintf("1(%s)", r),
				base:  r,
			})
		}

		out = append(out,
			form{text: fmt.Sprintf("0x%04x", addr), base: msp430.NoReg},
			form{text: fmt.Sprintf("&0x%04x", addr), base: msp430.NoReg},
		)
	}

	return out
}

// fixtures returns assembly snippets whose last instruction is an
// instance of the opcode with operands in the regions of p. Each snippet
// parses with mir.Function.ParseSeq.
func fixtures(d *msp430.Desc, p Pair, mm msp430.MemoryMap) []string {
	mn := d.Mnemonic
	if d.Byte {
		mn += ".b"
	}

	switch {
	case d.Is(msp430.FlagPseudo):
		return nil
	case d.Name == "JMP":
		return []string{"jmp " + FixtureLabel}
	case d.Name == "JCC":
		return []string{"jeq " + FixtureLabel, "jne " + FixtureLabel, "jl " + FixtureLabel}
	case d.Format == msp430.FormatOneOperand && d.Dst == msp430.ModeNone:
		return []string{mn}
	}

	srcAddr := mm.Sample(p.Src)
	dstAddr := mm.Sample(p.Dst) + 0x10

	if d.Format == msp430.FormatOneOperand {
		if d.Dst == msp430.ModeImmediate && (d.Is(msp430.FlagCall) || d.Is(msp430.FlagBranch)) {
			return []string{mn + " #" + FixtureLabel}
		}

		var out []string
		for _, f := range operandForms(d.Dst, dstAddr, baseRegs) {
			out = append(out, join(f.setup, mn+" "+f.text))
		}

		return out
	}

	var out []string

	for _, s := range operandForms(d.Src, srcAddr, baseRegs) {
		for _, t := range operandForms(d.Dst, dstAddr, otherRegs(s.base)) {
			setup := append(append([]string{}, s.setup...), t.setup...)
			out = append(out, join(setup, fmt.Sprintf("%s %s, %s", mn, s.text, t.text)))
		}
	}

	return out
}

// otherRegs returns one destination register distinct from the source
// base.
func otherRegs(srcBase msp430.Reg) []msp430.Reg {
	if srcBase == msp430.R15 {
		return []msp430.Reg{msp430.R5}
	}

	return []msp430.Reg{msp430.R15}
}

func join(setup []string, last string) string {
	return strings.Join(append(slices.Clone(setup), last), "; ")
}
