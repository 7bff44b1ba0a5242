// Package mir is the machine IR the defense passes work on: functions made
// of basic blocks of MSP430 instructions, plus the control-flow queries
// the passes need.
package mir

import (
	"fmt"
	"slices"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// BlockID is a stable arena index of a basic block.
type BlockID int

// Reserved block ids.
const (
	NoBlock BlockID = -1
	// VirtualExit is the post-dominator root every return block flows to.
	VirtualExit BlockID = -2
)

// Block is a basic block.
type Block struct {
	ID     BlockID
	Name   string
	Instrs []*Instr
	Succs  []BlockID

	// Sensitive marks blocks whose execution a secret decides.
	Sensitive bool
}

// FirstTerminator returns the index of the first terminator, or
// len(b.Instrs) when there is none.
func (b *Block) FirstTerminator() int {
	for i, in := range b.Instrs {
		if in.IsTerminator() {
			return i
		}
	}

	return len(b.Instrs)
}

// Terminators returns the trailing terminator instructions.
func (b *Block) Terminators() []*Instr {
	return b.Instrs[b.FirstTerminator():]
}

// Insert places instructions before index i.
func (b *Block) Insert(i int, ins ...*Instr) {
	b.Instrs = slices.Insert(b.Instrs, i, ins...)
}

// Append adds instructions at the end of the block.
func (b *Block) Append(ins ...*Instr) {
	b.Instrs = append(b.Instrs, ins...)
}

// Remove deletes the instruction at index i.
func (b *Block) Remove(i int) {
	b.Instrs = slices.Delete(b.Instrs, i, i+1)
}

// Replace swaps the instruction at index i.
func (b *Block) Replace(i int, in *Instr) {
	b.Instrs[i] = in
}

// IndexOf returns the position of an instruction in the block.
func (b *Block) IndexOf(id InstrID) int {
	for i, in := range b.Instrs {
		if in.ID == id {
			return i
		}
	}

	return -1
}

// HasSucc reports whether s is a successor of b.
func (b *Block) HasSucc(s BlockID) bool {
	return slices.Contains(b.Succs, s)
}

// Secrets names the values holding secrets on function entry.
type Secrets struct {
	Regs []msp430.Reg
	Mem  []string
}

// Empty reports whether no secret is declared.
func (s Secrets) Empty() bool {
	return len(s.Regs) == 0 && len(s.Mem) == 0
}

// Region records a balanced secret-dependent branch: Branch decides
// between the True and False arms, which meet again at Join.
type Region struct {
	Branch BlockID
	True   BlockID
	False  BlockID
	Join   BlockID
}

// LoopExit records the exiting branch of a loop with a known trip count.
type LoopExit struct {
	Latch  BlockID
	Header BlockID
	Trip   int
}

// Function is a machine function.
type Function struct {
	Name    string
	Blocks  []*Block
	Layout  []BlockID
	Secrets Secrets

	// LoopBounds are developer-supplied trip counts keyed by loop header
	// name.
	LoopBounds map[string]int

	// Regions and Loops are filled in by the branch balancing pass.
	Regions []Region
	Loops   []LoopExit

	nextInstr InstrID
	instrs    map[InstrID]*Instr
}

// NewFunction creates an empty function.
func NewFunction(name string) *Function {
	return &Function{
		Name:       name,
		LoopBounds: make(map[string]int),
		instrs:     make(map[InstrID]*Instr),
	}
}

// AddBlock creates a block at the end of the layout.
func (fn *Function) AddBlock(name string) *Block {
	b := fn.newBlock(name)
	fn.Layout = append(fn.Layout, b.ID)

	return b
}

// InsertBlockBefore creates a block placed right before next in the
// layout.
func (fn *Function) InsertBlockBefore(next BlockID, name string) *Block {
	b := fn.newBlock(name)

	i := fn.layoutIndex(next)
	if i < 0 {
		panic(fmt.Sprintf("block %d is not in the layout of %s", next, fn.Name))
	}

	fn.Layout = slices.Insert(fn.Layout, i, b.ID)

	return b
}

func (fn *Function) newBlock(name string) *Block {
	if fn.BlockByName(name) != nil {
		name = fmt.Sprintf("%s.%d", name, len(fn.Blocks))
	}

	b := &Block{ID: BlockID(len(fn.Blocks)), Name: name}
	fn.Blocks = append(fn.Blocks, b)

	return b
}

// Block returns the block with the given id.
func (fn *Function) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(fn.Blocks) || fn.Blocks[id] == nil {
		panic(fmt.Sprintf("no block %d in %s", id, fn.Name))
	}

	return fn.Blocks[id]
}

// BlockByName finds a block by name.
func (fn *Function) BlockByName(name string) *Block {
	for _, b := range fn.Blocks {
		if b != nil && b.Name == name {
			return b
		}
	}

	return nil
}

// BlockName returns the name of a block id, suitable for diagnostics.
func (fn *Function) BlockName(id BlockID) string {
	switch id {
	case VirtualExit:
		return "<exit>"
	case NoBlock:
		return "<none>"
	}

	if int(id) < len(fn.Blocks) && fn.Blocks[id] != nil {
		return fn.Blocks[id].Name
	}

	return defaultBlockName(id)
}

// Entry returns the entry block.
func (fn *Function) Entry() BlockID {
	if len(fn.Layout) == 0 {
		return NoBlock
	}

	return fn.Layout[0]
}

// LayoutNext returns the block placed after id, which a block without an
// unconditional terminator falls through to.
func (fn *Function) LayoutNext(id BlockID) (BlockID, bool) {
	i := fn.layoutIndex(id)
	if i < 0 || i+1 >= len(fn.Layout) {
		return NoBlock, false
	}

	return fn.Layout[i+1], true
}

func (fn *Function) layoutIndex(id BlockID) int {
	return slices.Index(fn.Layout, id)
}

// Preds returns the predecessors of a block in layout order.
func (fn *Function) Preds(id BlockID) []BlockID {
	var preds []BlockID

	for _, bid := range fn.Layout {
		if fn.Blocks[bid].HasSucc(id) {
			preds = append(preds, bid)
		}
	}

	return preds
}

// Succs returns the successors of a block.
func (fn *Function) Succs(id BlockID) []BlockID {
	return fn.Block(id).Succs
}

// AddEdge adds a CFG edge.
func (fn *Function) AddEdge(from, to BlockID) {
	b := fn.Block(from)
	if !b.HasSucc(to) {
		b.Succs = append(b.Succs, to)
	}
}

// ReplaceEdge redirects the edge from->old to from->repl.
func (fn *Function) ReplaceEdge(from, old, repl BlockID) {
	b := fn.Block(from)

	b.Succs = slices.DeleteFunc(b.Succs, func(s BlockID) bool { return s == old })
	if !b.HasSucc(repl) {
		b.Succs = append(b.Succs, repl)
	}
}

// NewInstr creates an instruction owned by the function. It is not
// placed in any block.
func (fn *Function) NewInstr(op msp430.Opcode, ops ...Operand) *Instr {
	if fn.instrs == nil {
		fn.instrs = make(map[InstrID]*Instr)
	}

	in := &Instr{
		ID:       fn.nextInstr,
		Op:       op,
		Ops:      slices.Clone(ops),
		ShadowOf: NoInstr,
		PadOf:    NoInstr,
	}
	fn.nextInstr++
	fn.instrs[in.ID] = in

	return in
}

// Instr looks up an instruction by id, placed or not.
func (fn *Function) Instr(id InstrID) *Instr {
	return fn.instrs[id]
}

// Locate returns the block and index of a placed instruction.
func (fn *Function) Locate(id InstrID) (BlockID, int, bool) {
	for _, bid := range fn.Layout {
		if i := fn.Blocks[bid].IndexOf(id); i >= 0 {
			return bid, i, true
		}
	}

	return NoBlock, -1, false
}

// NumInstrs counts the placed instructions.
func (fn *Function) NumInstrs() int {
	n := 0
	for _, bid := range fn.Layout {
		n += len(fn.Blocks[bid].Instrs)
	}

	return n
}

// CloneBlock copies a block's instructions and successors into a new
// block at the end of the layout.
func (fn *Function) CloneBlock(id BlockID, name string) *Block {
	src := fn.Block(id)
	b := fn.AddBlock(name)

	for _, in := range src.Instrs {
		c := fn.NewInstr(in.Op, in.Ops...)
		c.ShadowOf = in.ShadowOf
		c.PadOf = in.PadOf
		b.Append(c)
	}

	b.Succs = slices.Clone(src.Succs)
	b.Sensitive = src.Sensitive

	return b
}

// Clone makes a deep copy of the function. Instruction ids are kept.
func (fn *Function) Clone() *Function {
	c := &Function{
		Name:       fn.Name,
		Blocks:     make([]*Block, len(fn.Blocks)),
		Layout:     slices.Clone(fn.Layout),
		Secrets:    Secrets{Regs: slices.Clone(fn.Secrets.Regs), Mem: slices.Clone(fn.Secrets.Mem)},
		LoopBounds: make(map[string]int, len(fn.LoopBounds)),
		Regions:    slices.Clone(fn.Regions),
		Loops:      slices.Clone(fn.Loops),
		nextInstr:  fn.nextInstr,
		instrs:     make(map[InstrID]*Instr, len(fn.instrs)),
	}

	for k, v := range fn.LoopBounds {
		c.LoopBounds[k] = v
	}

	for id, in := range fn.instrs {
		cp := *in
		cp.Ops = slices.Clone(in.Ops)
		c.instrs[id] = &cp
	}

	for i, b := range fn.Blocks {
		if b == nil {
			continue
		}

		nb := &Block{
			ID:        b.ID,
			Name:      b.Name,
			Succs:     slices.Clone(b.Succs),
			Sensitive: b.Sensitive,
			Instrs:    make([]*Instr, len(b.Instrs)),
		}
		for j, in := range b.Instrs {
			nb.Instrs[j] = c.instrs[in.ID]
		}

		c.Blocks[i] = nb
	}

	return c
}

// Restore overwrites the function with a copy taken by Clone.
func (fn *Function) Restore(snapshot *Function) {
	*fn = *snapshot.Clone()
}

// Format renders an instruction with this function's block names.
func (fn *Function) Format(in *Instr) string {
	return in.Format(fn.BlockName)
}

// RecomputeSuccs derives successor lists from the terminators and the
// layout. Blocks ending in an indirect branch keep the successors they
// have.
func (fn *Function) RecomputeSuccs() {
	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]

		var (
			succs   []BlockID
			through = true
		)

		indirect := false

		for _, in := range b.Terminators() {
			switch {
			case in.IsIndirectBranch():
				indirect = true
				through = false
			case in.IsReturn():
				through = false
			case in.IsBranch():
				if t, ok := in.Target(); ok && !slices.Contains(succs, t) {
					succs = append(succs, t)
				}

				if !in.IsConditional() {
					through = false
				}
			}
		}

		if indirect {
			continue
		}

		if through {
			if next, ok := fn.LayoutNext(bid); ok && !slices.Contains(succs, next) {
				succs = append(succs, next)
			}
		}

		b.Succs = succs
	}
}
