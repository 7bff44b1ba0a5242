package nemesis

import (
	"slices"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

type position struct {
	block mir.BlockID
	index int
}

// ReachingDefs answers which definitions of a register reach an
// instruction. Values live on function entry are reported as mir.LiveIn.
type ReachingDefs struct {
	fn    *mir.Function
	entry mir.BlockID
	pos   map[mir.InstrID]position
	// defs holds, per block and register, the defining instructions in
	// block order.
	defs map[mir.BlockID]map[msp430.Reg][]mir.InstrID
}

// NewReachingDefs indexes the definitions of fn.
func NewReachingDefs(fn *mir.Function) *ReachingDefs {
	rd := &ReachingDefs{
		fn:    fn,
		entry: fn.Entry(),
		pos:   make(map[mir.InstrID]position),
		defs:  make(map[mir.BlockID]map[msp430.Reg][]mir.InstrID),
	}

	for _, bid := range fn.Layout {
		m := make(map[msp430.Reg][]mir.InstrID)

		for i, in := range fn.Blocks[bid].Instrs {
			rd.pos[in.ID] = position{bid, i}

			for _, r := range in.Defs() {
				m[r] = append(m[r], in.ID)
			}
		}

		rd.defs[bid] = m
	}

	return rd
}

// BlockDefs returns the definitions of each register inside a block.
func (rd *ReachingDefs) BlockDefs(b mir.BlockID) map[msp430.Reg][]mir.InstrID {
	return rd.defs[b]
}

// GetDefsBefore returns the definitions of r that reach instruction id.
// A definition earlier in the same block hides every other one.
func (rd *ReachingDefs) GetDefsBefore(id mir.InstrID, r msp430.Reg) []mir.InstrID {
	p, ok := rd.pos[id]
	if !ok {
		return nil
	}

	instrs := rd.fn.Blocks[p.block].Instrs
	for i := p.index - 1; i >= 0; i-- {
		if slices.Contains(instrs[i].Defs(), r) {
			return []mir.InstrID{instrs[i].ID}
		}
	}

	return rd.In(p.block, r)
}

// GetDefsAfter returns the definitions of r that follow instruction id in
// its block.
func (rd *ReachingDefs) GetDefsAfter(id mir.InstrID, r msp430.Reg) []mir.InstrID {
	p, ok := rd.pos[id]
	if !ok {
		return nil
	}

	var out []mir.InstrID
	for _, in := range rd.fn.Blocks[p.block].Instrs[p.index+1:] {
		if slices.Contains(in.Defs(), r) {
			out = append(out, in.ID)
		}
	}

	return out
}

// In returns the definitions of r reaching the start of block b.
func (rd *ReachingDefs) In(b mir.BlockID, r msp430.Reg) []mir.InstrID {
	var (
		out     []mir.InstrID
		visited = map[mir.BlockID]bool{b: true}
	)

	if b == rd.entry {
		out = append(out, mir.LiveIn)
	}

	for _, p := range rd.fn.Preds(b) {
		out = rd.collect(p, r, visited, out)
	}

	return dedup(out)
}

// Out returns the definitions of r reaching the end of block b.
func (rd *ReachingDefs) Out(b mir.BlockID, r msp430.Reg) []mir.InstrID {
	if ds := rd.defs[b][r]; len(ds) > 0 {
		return []mir.InstrID{ds[len(ds)-1]}
	}

	return rd.In(b, r)
}

// collect walks predecessors depth first. A block already visited adds
// nothing new, which stops the walk at back edges.
func (rd *ReachingDefs) collect(b mir.BlockID, r msp430.Reg, visited map[mir.BlockID]bool, out []mir.InstrID) []mir.InstrID {
	if ds := rd.defs[b][r]; len(ds) > 0 {
		return append(out, ds[len(ds)-1])
	}

	if visited[b] {
		return out
	}

	visited[b] = true

	if b == rd.entry {
		out = append(out, mir.LiveIn)
	}

	for _, p := range rd.fn.Preds(b) {
		out = rd.collect(p, r, visited, out)
	}

	return out
}

func dedup(ids []mir.InstrID) []mir.InstrID {
	slices.Sort(ids)
	return slices.Compact(ids)
}
