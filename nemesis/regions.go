package nemesis

import (
	"fmt"
	"slices"

	"github.com/sarchlab/sllvm-defend/mir"
)

// region is a sensitive two-way branch: branch decides between the arms
// starting at t and f, which meet at join.
type region struct {
	branch mir.BlockID
	t, f   mir.BlockID
	join   mir.BlockID
	armT   []mir.BlockID
	armF   []mir.BlockID
	depth  int
}

// arm returns the blocks reachable from start without passing join, in
// discovery order. The arm must be entered only through from.
func arm(fn *mir.Function, from, start, join mir.BlockID) ([]mir.BlockID, error) {
	if start == join {
		return nil, nil
	}

	var (
		out  []mir.BlockID
		in   = map[mir.BlockID]bool{start: true}
		work = []mir.BlockID{start}
	)

	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		out = append(out, b)

		succs := fn.Succs(b)
		if len(succs) == 0 {
			return nil, fmt.Errorf("block %s leaves the function before %s: %w",
				fn.BlockName(b), fn.BlockName(join), ErrUnanalyzable)
		}

		for _, s := range succs {
			if s == join || in[s] {
				continue
			}

			in[s] = true
			work = append(work, s)
		}
	}

	for _, b := range out {
		for _, p := range fn.Preds(b) {
			if in[p] || (b == start && p == from) {
				continue
			}

			return nil, fmt.Errorf("block %s is entered from %s outside the branch at %s: %w",
				fn.BlockName(b), fn.BlockName(p), fn.BlockName(from), ErrUnanalyzable)
		}
	}

	return out, nil
}

// detectSensitiveRegions finds the regions opened by secret-dependent
// branches and, inside them, by every other two-way branch that is not a
// loop exit. Regions are returned innermost first.
func (a *Analysis) detectSensitiveRegions() error {
	fn := a.fn

	var work []mir.BlockID
	for _, b := range a.CFG.RPO() {
		if a.Infos[b].HasSecretDependentBranch {
			work = append(work, b)
		}
	}

	seen := make(map[mir.BlockID]bool)

	for len(work) > 0 {
		b := work[0]
		work = work[1:]

		if seen[b] {
			continue
		}

		seen[b] = true
		bi := a.Infos[b]

		if l := a.CFG.LoopFor(b); l != nil && (!l.Contains(bi.TrueBB) || !l.Contains(bi.FalseBB)) {
			if bi.HasSecretDependentBranch {
				return a.fail(b, a.jcc(b), fmt.Errorf("branch leaves loop at %s: %w",
					fn.BlockName(l.Header), ErrSecretLoopExit))
			}

			continue
		}

		join := a.CFG.IPDom(b)
		if join == mir.NoBlock || join == mir.VirtualExit {
			return a.fail(b, a.jcc(b), fmt.Errorf("arms never meet: %w", ErrUnanalyzable))
		}

		armT, err := arm(fn, b, bi.TrueBB, join)
		if err != nil {
			return a.fail(b, nil, err)
		}

		armF, err := arm(fn, b, bi.FalseBB, join)
		if err != nil {
			return a.fail(b, nil, err)
		}

		for _, x := range armT {
			if slices.Contains(armF, x) {
				return a.fail(b, nil, fmt.Errorf("both arms reach %s before %s: %w",
					fn.BlockName(x), fn.BlockName(join), ErrUnanalyzable))
			}
		}

		body := append(slices.Clone(armT), armF...)

		if l := a.CFG.LoopFor(b); l != nil {
			for _, x := range append(body, join) {
				if !l.Contains(x) {
					return a.fail(b, nil, fmt.Errorf("region escapes the loop at %s: %w",
						fn.BlockName(l.Header), ErrUnanalyzable))
				}
			}
		}

		for _, x := range body {
			a.Infos[x].IsPartOfSensitiveRegion = true
			fn.Block(x).Sensitive = true

			if a.Infos[x].IsConditionalBranch {
				work = append(work, x)
			}
		}

		a.regions = append(a.regions, region{
			branch: b,
			t:      bi.TrueBB,
			f:      bi.FalseBB,
			join:   join,
			armT:   armT,
			armF:   armF,
		})

		mir.Trace("sensitive region",
			"func", fn.Name,
			"branch", fn.BlockName(b),
			"join", fn.BlockName(join),
			"blocks", len(body))
	}

	for i := range a.regions {
		r := &a.regions[i]
		for _, q := range a.regions {
			if q.branch != r.branch && (slices.Contains(q.armT, r.branch) || slices.Contains(q.armF, r.branch)) {
				r.depth++
			}
		}
	}

	slices.SortStableFunc(a.regions, func(x, y region) int { return y.depth - x.depth })

	return nil
}

// analyzeLoops records the trip counts it can find and checks that every
// loop inside a sensitive region has one.
func (a *Analysis) analyzeLoops(limit int) error {
	fn := a.fn

	for _, l := range a.CFG.Loops {
		hi := a.Infos[l.Header]
		hi.IsLoopHeader = true

		for _, latch := range l.Latches {
			a.Infos[latch].IsLoopLatch = true
		}

		canonical := canonicalLoop(fn, l)
		if canonical {
			for b := range l.Blocks {
				a.Infos[b].IsCanonicalLoopBlock = true
			}

			hi.TripCount = tripCount(fn, a.RD, l, limit)
		}

		if canonical && hi.TripCount >= 0 {
			a.loops = append(a.loops, mir.LoopExit{
				Latch:  l.Latches[0],
				Header: l.Header,
				Trip:   hi.TripCount,
			})
		}

		if !hi.IsPartOfSensitiveRegion {
			continue
		}

		if !canonical {
			return a.fail(l.Header, nil, fmt.Errorf("loop is not in canonical form: %w", ErrUnboundedLoop))
		}

		if hi.TripCount < 0 {
			return a.fail(l.Header, nil, fmt.Errorf("counter not found within %d iterations: %w", limit, ErrUnboundedLoop))
		}

		mir.Trace("bounded loop",
			"func", fn.Name,
			"header", fn.BlockName(l.Header),
			"trip", hi.TripCount)
	}

	return nil
}
