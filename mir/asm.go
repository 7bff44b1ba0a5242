package mir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// ErrSyntax is returned for instructions the parser cannot read.
var ErrSyntax = errors.New("syntax error")

// emulated instructions and their two-operand expansion.
var emulated = map[string][2]string{
	"clr":  {"mov", "#0"},
	"inc":  {"add", "#1"},
	"incd": {"add", "#2"},
	"dec":  {"sub", "#1"},
	"decd": {"sub", "#2"},
	"tst":  {"cmp", "#0"},
	"inv":  {"xor", "#-1"},
	"pop":  {"mov", "@sp+"},
	"setc": {"bis", "#1"},
	"clrc": {"bic", "#1"},
}

// ParseSeq parses instructions separated by semicolons or newlines.
func (fn *Function) ParseSeq(text string) ([]*Instr, error) {
	var out []*Instr

	for _, line := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ';' || r == '\n'
	}) {
		if strings.TrimSpace(line) == "" {
			continue
		}

		in, err := fn.ParseInstr(line)
		if err != nil {
			return nil, err
		}

		out = append(out, in)
	}

	return out, nil
}

// ParseInstr parses one instruction in TI assembler syntax. Jump targets
// are block names of fn. A memory operand may carry a region annotation
// such as 2(r4)[peripheral].
func (fn *Function) ParseInstr(text string) (*Instr, error) {
	text = strings.TrimSpace(text)

	mn, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(mn, '\t'); i >= 0 {
		mn, rest = mn[:i], mn[i+1:]+" "+rest
	}

	mn = strings.ToLower(mn)

	byteOp := false
	switch {
	case strings.HasSuffix(mn, ".b"):
		byteOp = true
		mn = strings.TrimSuffix(mn, ".b")
	case strings.HasSuffix(mn, ".w"):
		mn = strings.TrimSuffix(mn, ".w")
	}

	in, err := fn.build(mn, byteOp, splitOperands(rest))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}

	return in, nil
}

func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

func (fn *Function) build(mn string, byteOp bool, args []string) (*Instr, error) {
	if mn == "" {
		return nil, fmt.Errorf("empty instruction: %w", ErrSyntax)
	}

	if e, ok := emulated[mn]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes one operand: %w", mn, ErrSyntax)
		}

		return fn.build(e[0], byteOp, []string{e[1], args[0]})
	}

	switch mn {
	case "nop":
		return fn.NewInstr(msp430.MOV16rc, ConstOp(0), RegOp(msp430.CG)), nil
	case "ret", "reti", "secure_enter", "secure_exit":
		return fn.buildNoOperand(mn, args)
	case "adjcallstackdown", "adjcallstackup":
		return fn.buildAdjust(mn, args)
	case "implicit_def", "kill":
		return fn.buildRegPseudo(mn, args)
	case "jmp":
		return fn.buildJump(msp430.JMP, args, nil)
	case "br", "call", "push":
		return fn.buildSingle(mn, byteOp, args)
	}

	if c, ok := msp430.ParseCondJump(mn); ok {
		cond := CondOp(c)
		return fn.buildJump(msp430.JCC, args, &cond)
	}

	switch len(args) {
	case 1:
		return fn.buildSingle(mn, byteOp, args)
	case 2:
		return fn.buildDouble(mn, byteOp, args)
	}

	return nil, fmt.Errorf("unknown instruction %s/%d: %w", mn, len(args), ErrSyntax)
}

func (fn *Function) buildNoOperand(mn string, args []string) (*Instr, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("%s takes no operands: %w", mn, ErrSyntax)
	}

	op, ok := msp430.Lookup(mn, false, msp430.ModeNone, msp430.ModeNone)
	if !ok {
		return nil, fmt.Errorf("unknown instruction %s: %w", mn, ErrSyntax)
	}

	return fn.NewInstr(op), nil
}

func (fn *Function) buildAdjust(mn string, args []string) (*Instr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes one operand: %w", mn, ErrSyntax)
	}

	n, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 0, 64)
	if err != nil {
		return nil, fmt.Errorf("bad stack adjustment %q: %w", args[0], ErrSyntax)
	}

	op, _ := msp430.Lookup(mn, false, msp430.ModeNone, msp430.ModeNone)

	return fn.NewInstr(op, ImmOp(n)), nil
}

func (fn *Function) buildRegPseudo(mn string, args []string) (*Instr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes one register: %w", mn, ErrSyntax)
	}

	r, ok := msp430.ParseReg(args[0])
	if !ok {
		return nil, fmt.Errorf("bad register %q: %w", args[0], ErrSyntax)
	}

	op, _ := msp430.Lookup(mn, false, msp430.ModeNone, msp430.ModeNone)

	return fn.NewInstr(op, RegOp(r)), nil
}

func (fn *Function) buildJump(op msp430.Opcode, args []string, cond *Operand) (*Instr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("jump takes one label: %w", ErrSyntax)
	}

	b := fn.BlockByName(args[0])
	if b == nil {
		return nil, fmt.Errorf("unknown label %q: %w", args[0], ErrSyntax)
	}

	ops := []Operand{BlockOp(b.ID)}
	if cond != nil {
		ops = append(ops, *cond)
	}

	return fn.NewInstr(op, ops...), nil
}

func (fn *Function) buildSingle(mn string, byteOp bool, args []string) (*Instr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes one operand: %w", mn, ErrSyntax)
	}

	o, err := fn.parseOperand(args[0])
	if err != nil {
		return nil, err
	}

	if mn == "br" || mn == "call" {
		switch {
		case o.Kind == KindBlock:
			o.Mode = msp430.ModeImmediate
		case o.Mode == msp430.ModeConstGen:
			o = ImmOp(o.Imm)
		}
	}

	op, ok := msp430.Lookup(mn, byteOp, msp430.ModeNone, o.Mode)
	if !ok {
		return nil, fmt.Errorf("%s does not take a %s operand: %w", mn, o.Mode, ErrSyntax)
	}

	return fn.NewInstr(op, o), nil
}

func (fn *Function) buildDouble(mn string, byteOp bool, args []string) (*Instr, error) {
	src, err := fn.parseOperand(args[0])
	if err != nil {
		return nil, err
	}

	dst, err := fn.parseOperand(args[1])
	if err != nil {
		return nil, err
	}

	if _, ok := dst.Mode.Ad(); !ok {
		return nil, fmt.Errorf("%s is not a valid destination: %w", args[1], ErrSyntax)
	}

	op, ok := msp430.Lookup(mn, byteOp, src.Mode, dst.Mode)
	if !ok {
		return nil, fmt.Errorf("unknown instruction %s %s, %s: %w", mn, src.Mode, dst.Mode, ErrSyntax)
	}

	return fn.NewInstr(op, src, dst), nil
}

func (fn *Function) parseOperand(s string) (Operand, error) {
	s = strings.TrimSpace(s)

	region := msp430.RegionUnknown
	if strings.HasSuffix(s, "]") {
		i := strings.LastIndexByte(s, '[')
		if i < 0 {
			return Operand{}, fmt.Errorf("bad operand %q: %w", s, ErrSyntax)
		}

		r, err := msp430.ParseRegion(s[i+1 : len(s)-1])
		if err != nil {
			return Operand{}, fmt.Errorf("%v: %w", err, ErrSyntax)
		}

		region = r
		s = strings.TrimSpace(s[:i])
	}

	o, err := fn.parseBareOperand(s)
	if err != nil {
		return Operand{}, err
	}

	if region != msp430.RegionUnknown {
		o = o.In(region)
	}

	return o, nil
}

func (fn *Function) parseBareOperand(s string) (Operand, error) {
	if s == "" {
		return Operand{}, fmt.Errorf("missing operand: %w", ErrSyntax)
	}

	switch s[0] {
	case '#':
		v := s[1:]
		if n, err := strconv.ParseInt(v, 0, 64); err == nil {
			return ConstOp(n), nil
		}

		if b := fn.BlockByName(v); b != nil {
			o := BlockOp(b.ID)
			o.Mode = msp430.ModeImmediate

			return o, nil
		}

		return SymImmOp(v), nil
	case '&':
		v := s[1:]
		if n, err := strconv.ParseInt(v, 0, 64); err == nil {
			return AbsOp(uint16(n)), nil
		}

		return AbsSymOp(v), nil
	case '@':
		v := s[1:]
		inc := strings.HasSuffix(v, "+")

		r, ok := msp430.ParseReg(strings.TrimSuffix(v, "+"))
		if !ok {
			return Operand{}, fmt.Errorf("bad register in %q: %w", s, ErrSyntax)
		}

		if inc {
			return AutoIncOp(r), nil
		}

		return IndirectOp(r), nil
	}

	if open := strings.IndexByte(s, '('); open >= 0 && strings.HasSuffix(s, ")") {
		off, err := strconv.ParseInt(strings.TrimSpace(s[:open]), 0, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("bad offset in %q: %w", s, ErrSyntax)
		}

		r, ok := msp430.ParseReg(s[open+1 : len(s)-1])
		if !ok {
			return Operand{}, fmt.Errorf("bad register in %q: %w", s, ErrSyntax)
		}

		return IndexedOp(off, r), nil
	}

	if r, ok := msp430.ParseReg(s); ok {
		return RegOp(r), nil
	}

	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return SymbolicOp(uint16(n)), nil
	}

	if b := fn.BlockByName(s); b != nil {
		return BlockOp(b.ID), nil
	}

	return SymbolicSymOp(s), nil
}
