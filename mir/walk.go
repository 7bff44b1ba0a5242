package mir

import (
	"errors"
	"fmt"
	"slices"
)

// Errors reported by Walk.
var (
	ErrUnbalancedBranch = errors.New("conditional branch is neither balanced nor a bounded loop exit")
	ErrWalkLimit        = errors.New("path does not reach its end")
)

// Direction selects the arm Walk follows at balanced branches.
type Direction bool

// Walk directions.
const (
	TakeTrue  Direction = true
	TakeFalse Direction = false
)

const walkLimit = 1 << 16

// Path is the blocks and timed instructions of a walk.
type Path struct {
	Blocks []BlockID
	Instrs []*Instr
}

// Walk returns the timed instructions executed on the path from block
// from up to, but excluding, block to. Conditional branches must either
// open a recorded region, where dir picks the arm, or exit a loop with a
// recorded trip count.
func Walk(fn *Function, from, to BlockID, dir Direction) ([]*Instr, error) {
	p, err := walk(fn, from, dir, func(b BlockID) bool { return b == to }, nil)
	if err != nil {
		return nil, fmt.Errorf("walking %s from %s to %s: %w",
			fn.Name, fn.BlockName(from), fn.BlockName(to), err)
	}

	return p.Instrs, nil
}

// WalkUntil walks from block from until it has executed a block for which
// last reports true.
func WalkUntil(fn *Function, from BlockID, dir Direction, last func(BlockID) bool) (Path, error) {
	p, err := walk(fn, from, dir, nil, last)
	if err != nil {
		return Path{}, fmt.Errorf("walking %s from %s: %w", fn.Name, fn.BlockName(from), err)
	}

	return p, nil
}

func walk(fn *Function, from BlockID, dir Direction, before, after func(BlockID) bool) (Path, error) {
	var (
		p     Path
		trips = make(map[BlockID]int)
		cur   = from
	)

	for before == nil || !before(cur) {
		if len(p.Instrs) > walkLimit {
			return Path{}, ErrWalkLimit
		}

		if cur == VirtualExit || cur == NoBlock {
			return Path{}, fmt.Errorf("returned early: %w", ErrWalkLimit)
		}

		b := fn.Block(cur)
		p.Blocks = append(p.Blocks, cur)

		if after != nil && after(cur) {
			p.Instrs = appendTimed(p.Instrs, b.Instrs)
			break
		}

		taken, err := chooseEdge(fn, b, dir, trips)
		if err != nil {
			return Path{}, err
		}

		next, upTo, err := followEdge(fn, b, taken)
		if err != nil {
			return Path{}, err
		}

		p.Instrs = appendTimed(p.Instrs, b.Instrs[:upTo])
		cur = next
	}

	return p, nil
}

func appendTimed(out, ins []*Instr) []*Instr {
	for _, in := range ins {
		if !in.IsPseudo() {
			out = append(out, in)
		}
	}

	return out
}

// Cycles returns the latency of each instruction.
func Cycles(seq []*Instr) []int {
	out := make([]int, len(seq))
	for i, in := range seq {
		out[i] = in.Cycles()
	}

	return out
}

func conditional(b *Block) (*Instr, int) {
	for i, in := range b.Instrs {
		if in.IsConditional() {
			return in, i
		}
	}

	return nil, -1
}

// chooseEdge decides whether the conditional jump of b is taken.
func chooseEdge(fn *Function, b *Block, dir Direction, trips map[BlockID]int) (bool, error) {
	jcc, _ := conditional(b)
	if jcc == nil {
		return false, nil
	}

	if slices.ContainsFunc(fn.Regions, func(r Region) bool { return r.Branch == b.ID }) {
		return bool(dir), nil
	}

	i := slices.IndexFunc(fn.Loops, func(l LoopExit) bool { return l.Latch == b.ID })
	if i < 0 {
		return false, fmt.Errorf("block %s of %s: %w", b.Name, fn.Name, ErrUnbalancedBranch)
	}

	l := fn.Loops[i]
	target, _ := jcc.Target()
	jumpsBack := target == l.Header

	trips[b.ID]++
	if trips[b.ID] < l.Trip {
		return jumpsBack, nil
	}

	trips[b.ID] = 0

	return !jumpsBack, nil
}

// followEdge returns the next block and how many of b's instructions run
// on the way there.
func followEdge(fn *Function, b *Block, taken bool) (BlockID, int, error) {
	if jcc, i := conditional(b); jcc != nil && taken {
		t, _ := jcc.Target()
		return t, i + 1, nil
	}

	for _, in := range b.Terminators() {
		switch {
		case in.IsConditional():
		case in.IsReturn():
			return VirtualExit, len(b.Instrs), nil
		case in.IsBranch():
			t, ok := in.Target()
			if !ok {
				return NoBlock, 0, fmt.Errorf("indirect branch in %s of %s: %w", b.Name, fn.Name, ErrUnbalancedBranch)
			}

			return t, len(b.Instrs), nil
		}
	}

	next, ok := fn.LayoutNext(b.ID)
	if !ok {
		return NoBlock, 0, fmt.Errorf("block %s of %s falls off the function: %w", b.Name, fn.Name, ErrWalkLimit)
	}

	return next, len(b.Instrs), nil
}
