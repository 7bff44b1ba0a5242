package nemesis

import (
	"fmt"
	"slices"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// canonicalLoop reports whether l has a single latch that is also its only
// exiting block, and that latch ends in a conditional jump.
func canonicalLoop(fn *mir.Function, l *mir.Loop) bool {
	if len(l.Latches) != 1 || len(l.Exiting) != 1 || l.Latches[0] != l.Exiting[0] {
		return false
	}

	b := fn.Block(l.Latches[0])
	for _, in := range b.Terminators() {
		if in.IsConditional() {
			return true
		}
	}

	return false
}

// tripCount finds how many times the body of a canonical loop runs. An
// annotation on the header wins; otherwise the counter pattern
//
//	mov #init, rN
//	header: ... add|sub #step, rN ... [cmp #k, rN] ... jcc
//
// is evaluated up to limit iterations. It returns -1 when neither applies.
func tripCount(fn *mir.Function, rd *ReachingDefs, l *mir.Loop, limit int) int {
	header := fn.Block(l.Header)
	if n, ok := fn.LoopBounds[header.Name]; ok && n > 0 {
		return n
	}

	latch := fn.Block(l.Latches[0])

	var jcc *mir.Instr
	for _, in := range latch.Terminators() {
		if in.IsConditional() {
			jcc = in
		}
	}

	target, _ := jcc.Target()
	jumpsBack := target == l.Header

	flagDefs := rd.GetDefsBefore(jcc.ID, msp430.SR)
	if len(flagDefs) != 1 || flagDefs[0] == mir.LiveIn {
		return -1
	}

	test := fn.Instr(flagDefs[0])

	ctr, ok := counterReg(test)
	if !ok {
		return -1
	}

	step, ok := loopStep(fn, rd, l, ctr)
	if !ok {
		return -1
	}

	init, ok := loopInit(fn, rd, l, ctr)
	if !ok {
		return -1
	}

	stepFirst := true
	if test.ID != step.ID {
		sb, si, _ := fn.Locate(step.ID)
		tb, ti, _ := fn.Locate(test.ID)
		stepFirst = sb != tb || si < ti
	}

	v := init
	for trip := 1; trip <= limit; trip++ {
		var f msp430.Flags

		if stepFirst {
			v, f = apply(step, v)
			if test.ID != step.ID {
				_, f = msp430.SubFlags(v, uint16(test.Src().Imm))
			}
		} else {
			_, f = msp430.SubFlags(v, uint16(test.Src().Imm))
			v, _ = apply(step, v)
		}

		if jcc.Condition().Holds(f) != jumpsBack {
			return trip
		}
	}

	return -1
}

// counterReg returns the register a flag-setting instruction tests against
// a constant.
func counterReg(in *mir.Instr) (msp430.Reg, bool) {
	d := in.Desc()
	src, dst := in.Src(), in.Dst()

	if d.Format != msp430.FormatTwoOperand || d.Byte || src == nil || src.Kind != mir.KindImm || dst.Kind != mir.KindReg {
		return msp430.NoReg, false
	}

	switch d.Mnemonic {
	case "cmp", "add", "sub":
		return dst.Reg, true
	}

	return msp430.NoReg, false
}

// loopStep finds the single constant update of the counter in the loop.
func loopStep(fn *mir.Function, rd *ReachingDefs, l *mir.Loop, ctr msp430.Reg) (*mir.Instr, bool) {
	var step *mir.Instr

	for b := range l.Blocks {
		for _, id := range rd.BlockDefs(b)[ctr] {
			if step != nil {
				return nil, false
			}

			step = fn.Instr(id)
		}
	}

	if step == nil {
		return nil, false
	}

	d := step.Desc()
	if d.Mnemonic != "add" && d.Mnemonic != "sub" {
		return nil, false
	}

	if r, ok := counterReg(step); !ok || r != ctr {
		return nil, false
	}

	return step, true
}

// loopInit finds the constant the counter holds on loop entry.
func loopInit(fn *mir.Function, rd *ReachingDefs, l *mir.Loop, ctr msp430.Reg) (uint16, bool) {
	var (
		init  uint16
		found bool
	)

	for _, p := range fn.Preds(l.Header) {
		if l.Contains(p) {
			continue
		}

		for _, id := range rd.Out(p, ctr) {
			if id == mir.LiveIn {
				return 0, false
			}

			in := fn.Instr(id)
			src := in.Src()

			if in.Desc().Mnemonic != "mov" || in.Desc().Byte || src == nil || src.Kind != mir.KindImm {
				return 0, false
			}

			v := uint16(src.Imm)
			if found && v != init {
				return 0, false
			}

			init, found = v, true
		}
	}

	return init, found
}

func apply(step *mir.Instr, v uint16) (uint16, msp430.Flags) {
	k := uint16(step.Src().Imm)
	if step.Desc().Mnemonic == "sub" {
		return msp430.SubFlags(v, k)
	}

	return msp430.AddFlags(v, k)
}

// Fingerprint is the blocks one iteration of a loop visits, for each arm
// choice at the sensitive branches inside it.
type Fingerprint struct {
	Header mir.BlockID
	True   []mir.BlockID
	False  []mir.BlockID
}

// fingerprint walks one iteration of a loop containing sensitive branches
// both ways and checks that the two walks take the same time.
func fingerprint(fn *mir.Function, l *mir.Loop) (Fingerprint, error) {
	if len(l.Latches) != 1 {
		return Fingerprint{}, fmt.Errorf("loop at %s has %d latches: %w",
			fn.BlockName(l.Header), len(l.Latches), ErrUnanalyzable)
	}

	latch := l.Latches[0]
	isLatch := func(b mir.BlockID) bool { return b == latch }

	t, err := mir.WalkUntil(fn, l.Header, mir.TakeTrue, isLatch)
	if err != nil {
		return Fingerprint{}, err
	}

	f, err := mir.WalkUntil(fn, l.Header, mir.TakeFalse, isLatch)
	if err != nil {
		return Fingerprint{}, err
	}

	if !slices.Equal(mir.Cycles(t.Instrs), mir.Cycles(f.Instrs)) {
		return Fingerprint{}, fmt.Errorf("iterations of loop at %s: %w", fn.BlockName(l.Header), ErrMisaligned)
	}

	return Fingerprint{Header: l.Header, True: t.Blocks, False: f.Blocks}, nil
}
