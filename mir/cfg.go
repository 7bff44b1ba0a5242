package mir

import (
	"errors"
	"fmt"
	"slices"
)

// ErrIrreducible is returned for control flow with a loop that has more
// than one entry.
var ErrIrreducible = errors.New("irreducible control flow")

// Loop is a natural loop.
type Loop struct {
	Header  BlockID
	Blocks  map[BlockID]bool
	Latches []BlockID
	// Exiting blocks have a successor outside the loop.
	Exiting []BlockID
	Parent  *Loop
	Depth   int
}

// Contains reports whether b belongs to the loop.
func (l *Loop) Contains(b BlockID) bool {
	return l.Blocks[b]
}

// CFG is a snapshot of the control-flow queries of a function. It goes
// stale as soon as the function is edited.
type CFG struct {
	fn       *Function
	rpo      []BlockID
	rpoIndex map[BlockID]int
	idom     map[BlockID]BlockID
	ipdom    map[BlockID]BlockID
	Loops    []*Loop
	loopOf   map[BlockID]*Loop
}

// Analyze computes dominators, post-dominators and the loop nest of fn.
// Irreducible control flow is an error.
func Analyze(fn *Function) (*CFG, error) {
	c := &CFG{
		fn:       fn,
		rpoIndex: make(map[BlockID]int),
		loopOf:   make(map[BlockID]*Loop),
	}

	c.rpo = reversePostOrder(fn.Entry(), fn.Succs)
	for i, b := range c.rpo {
		c.rpoIndex[b] = i
	}

	c.idom = dominators(c.rpo, fn.Preds)
	c.computePostDominators()

	if err := c.findLoops(); err != nil {
		return nil, err
	}

	return c, nil
}

// RPO returns the reachable blocks in reverse post order.
func (c *CFG) RPO() []BlockID {
	return c.rpo
}

// Reachable reports whether b is reachable from the entry.
func (c *CFG) Reachable(b BlockID) bool {
	_, ok := c.rpoIndex[b]
	return ok
}

// IDom returns the immediate dominator of b.
func (c *CFG) IDom(b BlockID) BlockID {
	if d, ok := c.idom[b]; ok && d != b {
		return d
	}

	return NoBlock
}

// Dominates reports whether a dominates b.
func (c *CFG) Dominates(a, b BlockID) bool {
	for {
		if a == b {
			return true
		}

		d, ok := c.idom[b]
		if !ok || d == b {
			return false
		}

		b = d
	}
}

// IPDom returns the immediate post-dominator of b. Blocks whose paths
// only meet at function exit report VirtualExit; blocks that cannot
// reach an exit report NoBlock.
func (c *CFG) IPDom(b BlockID) BlockID {
	if d, ok := c.ipdom[b]; ok {
		return d
	}

	return NoBlock
}

// PostDominates reports whether a post-dominates b.
func (c *CFG) PostDominates(a, b BlockID) bool {
	for {
		if a == b {
			return true
		}

		d, ok := c.ipdom[b]
		if !ok || d == b {
			return false
		}

		b = d
	}
}

// LoopFor returns the innermost loop containing b.
func (c *CFG) LoopFor(b BlockID) *Loop {
	return c.loopOf[b]
}

// LoopWithHeader returns the loop whose header is h.
func (c *CFG) LoopWithHeader(h BlockID) *Loop {
	for _, l := range c.Loops {
		if l.Header == h {
			return l
		}
	}

	return nil
}

func (c *CFG) computePostDominators() {
	exits := []BlockID{}

	for _, b := range c.rpo {
		if len(c.fn.Succs(b)) == 0 {
			exits = append(exits, b)
		}
	}

	succs := func(b BlockID) []BlockID {
		if b == VirtualExit {
			return exits
		}

		return slices.DeleteFunc(c.fn.Preds(b), func(p BlockID) bool {
			return !c.Reachable(p)
		})
	}

	preds := func(b BlockID) []BlockID {
		if slices.Contains(exits, b) {
			return []BlockID{VirtualExit}
		}

		return slices.DeleteFunc(slices.Clone(c.fn.Succs(b)), func(s BlockID) bool {
			return !c.Reachable(s)
		})
	}

	order := reversePostOrder(VirtualExit, succs)
	c.ipdom = dominators(order, preds)
	delete(c.ipdom, VirtualExit)
}

func (c *CFG) findLoops() error {
	byHeader := make(map[BlockID]*Loop)

	for _, b := range c.rpo {
		for _, s := range c.fn.Succs(b) {
			if !c.Reachable(s) || c.rpoIndex[s] > c.rpoIndex[b] {
				continue
			}

			if !c.Dominates(s, b) {
				return fmt.Errorf("edge %s -> %s enters a loop past its header: %w",
					c.fn.BlockName(b), c.fn.BlockName(s), ErrIrreducible)
			}

			l := byHeader[s]
			if l == nil {
				l = &Loop{Header: s, Blocks: map[BlockID]bool{s: true}}
				byHeader[s] = l
			}

			l.Latches = append(l.Latches, b)
			c.collectLoopBody(l, b)
		}
	}

	for _, l := range byHeader {
		c.Loops = append(c.Loops, l)
	}

	slices.SortFunc(c.Loops, func(a, b *Loop) int {
		if d := len(b.Blocks) - len(a.Blocks); d != 0 {
			return d
		}

		return c.rpoIndex[a.Header] - c.rpoIndex[b.Header]
	})

	for i, l := range c.Loops {
		for _, outer := range c.Loops[:i] {
			if outer.Contains(l.Header) && outer != l {
				l.Parent = outer
			}
		}

		if l.Parent != nil {
			l.Depth = l.Parent.Depth + 1
		} else {
			l.Depth = 1
		}

		for b := range l.Blocks {
			c.loopOf[b] = l
		}

		for _, b := range c.rpo {
			if !l.Contains(b) {
				continue
			}

			for _, s := range c.fn.Succs(b) {
				if !l.Contains(s) {
					l.Exiting = append(l.Exiting, b)
					break
				}
			}
		}
	}

	return nil
}

func (c *CFG) collectLoopBody(l *Loop, latch BlockID) {
	work := []BlockID{latch}

	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]

		if l.Blocks[b] {
			continue
		}

		l.Blocks[b] = true

		for _, p := range c.fn.Preds(b) {
			if c.Reachable(p) {
				work = append(work, p)
			}
		}
	}
}

// reversePostOrder numbers the nodes reachable from entry.
func reversePostOrder(entry BlockID, succs func(BlockID) []BlockID) []BlockID {
	if entry == NoBlock {
		return nil
	}

	var (
		post    []BlockID
		visited = map[BlockID]bool{entry: true}
	)

	type frame struct {
		b    BlockID
		next int
	}

	stack := []frame{{b: entry}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		ss := succs(top.b)
		if top.next < len(ss) {
			s := ss[top.next]
			top.next++

			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{b: s})
			}

			continue
		}

		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}

	slices.Reverse(post)

	return post
}

// dominators is the iterative algorithm of Cooper, Harvey and Kennedy over
// a reverse post order whose first element is the root.
func dominators(rpo []BlockID, preds func(BlockID) []BlockID) map[BlockID]BlockID {
	idom := make(map[BlockID]BlockID, len(rpo))
	if len(rpo) == 0 {
		return idom
	}

	index := make(map[BlockID]int, len(rpo))
	for i, b := range rpo {
		index[b] = i
	}

	root := rpo[0]
	idom[root] = root

	intersect := func(a, b BlockID) BlockID {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}

			for index[b] > index[a] {
				b = idom[b]
			}
		}

		return a
	}

	for changed := true; changed; {
		changed = false

		for _, b := range rpo[1:] {
			newIdom := NoBlock

			for _, p := range preds(b) {
				if _, ok := idom[p]; !ok {
					continue
				}

				if newIdom == NoBlock {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}

			if newIdom == NoBlock {
				continue
			}

			if old, ok := idom[b]; !ok || old != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	return idom
}
