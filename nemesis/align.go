package nemesis

import (
	"fmt"
	"slices"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// canonicalizeTerminators makes every control transfer explicit: a block
// ending in a conditional jump gets an unconditional jump to its false
// successor, and a block falling through gets a jump to the next block.
func canonicalizeTerminators(fn *mir.Function) {
	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]

		terms := b.Terminators()
		if len(terms) > 0 {
			last := terms[len(terms)-1]
			if last.IsReturn() || (last.IsBranch() && !last.IsConditional()) {
				continue
			}
		}

		next, ok := fn.LayoutNext(bid)
		if !ok {
			continue
		}

		b.Append(fn.NewInstr(msp430.JMP, mir.BlockOp(next)))
	}

	fn.RecomputeSuccs()
}

// mergeReturns sends every return block to a single new exit block so
// that branches whose arms return separately get a join. It reports
// whether it changed fn.
func mergeReturns(fn *mir.Function) (bool, error) {
	var (
		rets []mir.BlockID
		op   msp430.Opcode
	)

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]
		terms := b.Terminators()

		if len(terms) == 0 || !terms[len(terms)-1].IsReturn() {
			continue
		}

		last := terms[len(terms)-1]
		if op != msp430.OpInvalid && last.Op != op {
			return false, fmt.Errorf("function mixes %s and %s: %w", op, last.Op, ErrUnanalyzable)
		}

		op = last.Op
		rets = append(rets, bid)
	}

	if len(rets) < 2 {
		return false, nil
	}

	exit := fn.AddBlock("exit")
	exit.Append(fn.NewInstr(op))

	for _, bid := range rets {
		b := fn.Blocks[bid]
		b.Replace(len(b.Instrs)-1, fn.NewInstr(msp430.JMP, mir.BlockOp(exit.ID)))
	}

	fn.RecomputeSuccs()

	mir.Trace("merged returns", "func", fn.Name, "blocks", len(rets))

	return true, nil
}

// retarget redirects the branches of b that jump to from.
func retarget(fn *mir.Function, b *mir.Block, from, to mir.BlockID) {
	for i, in := range b.Instrs {
		if t, ok := in.Target(); ok && t == from {
			b.Replace(i, retargeted(fn, in, to))
		}
	}
}

// aligner makes the arms of sensitive branches take the same time.
type aligner struct {
	fn         *mir.Function
	classifier *memtrace.Classifier
	catalogue  *memtrace.Catalogue
	a          *Analysis
}

// shadow returns a side-effect-free instruction with the timing of x and,
// where the catalogue allows, its trace class with peripheral accesses
// counted as data.
func (al *aligner) shadow(x *mir.Instr) (*mir.Instr, error) {
	root := x.ID
	if x.IsShadow() {
		root = x.ShadowOf
	}

	tpl, err := al.catalogue.Lookup(al.normalizedClass(x))
	if err != nil {
		tpl, err = al.catalogue.ByCycles(x.Cycles())
	}

	if err != nil {
		bid, _, _ := al.fn.Locate(x.ID)
		return nil, al.a.fail(bid, x, err)
	}

	in := tpl.Instantiate(al.fn)
	in.ShadowOf = root

	return in, nil
}

func (al *aligner) normalizedClass(x *mir.Instr) memtrace.Class {
	var (
		cls memtrace.Class
		err error
	)

	if bid, i, ok := al.fn.Locate(x.ID); ok {
		_, cls, err = al.classifier.ClassifyNormalized(al.fn.Block(bid), i)
	} else {
		_, cls, err = al.classifier.Classify(x, msp430.RegionData, msp430.RegionData)
	}

	if err != nil {
		return memtrace.NoClass
	}

	return cls
}

func (al *aligner) shadows(seq []*mir.Instr) ([]*mir.Instr, error) {
	out := make([]*mir.Instr, 0, len(seq))

	for _, x := range seq {
		s, err := al.shadow(x)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, nil
}

// alignRegion cross-copies the arms of r. Afterwards the true path runs
//
//	jcc, shadow(jmp), arm T, shadows(arm F), jmp join
//
// and the false path
//
//	jcc, jmp, shadows(arm T), arm F, jmp join
func (al *aligner) alignRegion(r region) error {
	fn := al.fn
	b := fn.Block(r.branch)

	terms := b.Terminators()
	if len(terms) != 2 || !terms[0].IsConditional() {
		return al.a.fail(r.branch, nil, fmt.Errorf("branch terminators not canonical: %w", ErrUnanalyzable))
	}

	jcc, jmp := terms[0], terms[1]
	t, _ := jcc.Target()
	f, _ := jmp.Target()

	armT, err := arm(fn, r.branch, t, r.join)
	if err != nil {
		return al.a.fail(r.branch, nil, err)
	}

	armF, err := arm(fn, r.branch, f, r.join)
	if err != nil {
		return al.a.fail(r.branch, nil, err)
	}

	seqT, err := mir.Walk(fn, t, r.join, mir.TakeTrue)
	if err != nil {
		return al.a.fail(r.branch, nil, err)
	}

	seqF, err := mir.Walk(fn, f, r.join, mir.TakeTrue)
	if err != nil {
		return al.a.fail(r.branch, nil, err)
	}

	shJmp, err := al.shadow(jmp)
	if err != nil {
		return err
	}

	shT, err := al.shadows(seqT)
	if err != nil {
		return err
	}

	shF, err := al.shadows(seqF)
	if err != nil {
		return err
	}

	var added []*mir.Block

	jumpToJoin := func() *mir.Instr { return fn.NewInstr(msp430.JMP, mir.BlockOp(r.join)) }

	var tEntry mir.BlockID
	if t == r.join {
		st := fn.AddBlock(b.Name + ".st")
		st.Append(shJmp)
		st.Append(shF...)
		st.Append(jumpToJoin())
		tEntry = st.ID
		added = append(added, st)
	} else {
		pre := fn.InsertBlockBefore(t, b.Name+".st.pre")
		pre.Append(shJmp)

		post := fn.AddBlock(b.Name + ".st.post")
		post.Append(shF...)
		post.Append(jumpToJoin())

		for _, x := range armT {
			retarget(fn, fn.Block(x), r.join, post.ID)
		}

		tEntry = pre.ID
		added = append(added, pre, post)
	}

	var fEntry mir.BlockID
	if f == r.join {
		sf := fn.AddBlock(b.Name + ".sf")
		sf.Append(shT...)
		sf.Append(jumpToJoin())
		fEntry = sf.ID
		added = append(added, sf)
	} else {
		pre := fn.InsertBlockBefore(f, b.Name+".sf.pre")
		pre.Append(shT...)

		post := fn.AddBlock(b.Name + ".sf.post")
		post.Append(jumpToJoin())

		for _, x := range armF {
			retarget(fn, fn.Block(x), r.join, post.ID)
		}

		fEntry = pre.ID
		added = append(added, pre, post)
	}

	n := len(b.Instrs)
	b.Replace(n-2, retargeted(fn, jcc, tEntry))
	b.Replace(n-1, retargeted(fn, jmp, fEntry))

	for _, nb := range added {
		nb.Sensitive = true
	}

	fn.RecomputeSuccs()

	fn.Regions = append(fn.Regions, mir.Region{
		Branch: r.branch,
		True:   tEntry,
		False:  fEntry,
		Join:   r.join,
	})

	if err := verifyRegion(fn, fn.Regions[len(fn.Regions)-1]); err != nil {
		return al.a.fail(r.branch, nil, err)
	}

	al.a.Infos[r.branch].IsAligned = true

	mir.Trace("aligned region",
		"func", fn.Name,
		"branch", b.Name,
		"true", len(seqT),
		"false", len(seqF))

	return nil
}

func retargeted(fn *mir.Function, in *mir.Instr, to mir.BlockID) *mir.Instr {
	ops := slices.Clone(in.Ops)
	for j := range ops {
		if ops[j].Kind == mir.KindBlock {
			ops[j].Block = to
		}
	}

	repl := fn.NewInstr(in.Op, ops...)
	repl.ShadowOf = in.ShadowOf
	repl.PadOf = in.PadOf

	return repl
}

// verifyRegion checks that both arms of a region take the same time at
// every position.
func verifyRegion(fn *mir.Function, r mir.Region) error {
	t, err := mir.Walk(fn, r.Branch, r.Join, mir.TakeTrue)
	if err != nil {
		return err
	}

	f, err := mir.Walk(fn, r.Branch, r.Join, mir.TakeFalse)
	if err != nil {
		return err
	}

	if ct, cf := mir.Cycles(t), mir.Cycles(f); !slices.Equal(ct, cf) {
		return fmt.Errorf("true path %v, false path %v: %w", ct, cf, ErrMisaligned)
	}

	return nil
}
