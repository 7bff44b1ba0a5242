package nemesis

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// BlockInfo is what the pass knows about one block.
type BlockInfo struct {
	ID mir.BlockID

	IsAnalyzable             bool
	IsBranch                 bool
	IsConditionalBranch      bool
	IsPartOfSensitiveRegion  bool
	IsLoopHeader             bool
	IsLoopLatch              bool
	IsCanonicalLoopBlock     bool
	HasSecretDependentBranch bool
	IsEntry                  bool
	IsReturn                 bool
	IsDone                   bool
	IsAligned                bool

	// TripCount is -1 unless the block heads a loop with a known count.
	TripCount       int
	TerminatorCount int

	TrueBB        mir.BlockID
	FalseBB       mir.BlockID
	FallThroughBB mir.BlockID
	// Next is the target of an unconditional branch.
	Next   mir.BlockID
	BrCond msp430.Cond

	// Defs lists, per register, the instructions of the block defining it,
	// in order.
	Defs map[msp430.Reg][]mir.InstrID
	// Deps maps an instruction index to the definitions its register uses
	// may read.
	Deps map[int][]mir.InstrID

	// err is why the block is not analyzable.
	err error
}

func newBlockInfo(id mir.BlockID) *BlockInfo {
	return &BlockInfo{
		ID:            id,
		TripCount:     -1,
		TrueBB:        mir.NoBlock,
		FalseBB:       mir.NoBlock,
		FallThroughBB: mir.NoBlock,
		Next:          mir.NoBlock,
		Defs:          make(map[msp430.Reg][]mir.InstrID),
		Deps:          make(map[int][]mir.InstrID),
	}
}

// analyzeTerminators fills in the branch shape of b.
func (bi *BlockInfo) analyzeTerminators(fn *mir.Function, b *mir.Block) {
	bi.IsAnalyzable = true

	first := b.FirstTerminator()
	terms := b.Instrs[first:]
	bi.TerminatorCount = len(terms)

	fail := func(format string, args ...any) {
		if bi.IsAnalyzable {
			bi.IsAnalyzable = false
			bi.err = fmt.Errorf(format, args...)
		}
	}

	unconditional := false

	for _, in := range terms {
		switch {
		case !in.IsTerminator():
			fail("code after a terminator: %w", ErrUnanalyzable)
		case unconditional:
			fail("terminator after an unconditional one: %w", ErrUnanalyzable)
		case in.IsIndirectBranch():
			fail("%w", ErrIndirectBranch)
		case in.IsReturn():
			bi.IsReturn = true
			unconditional = true
		case in.IsConditional():
			if bi.IsConditionalBranch {
				fail("more than one conditional branch: %w", ErrUnanalyzable)
			}

			bi.IsBranch = true
			bi.IsConditionalBranch = true
			bi.TrueBB, _ = in.Target()
			bi.BrCond = in.Condition()
		case in.IsBranch():
			bi.IsBranch = true
			unconditional = true
			bi.Next, _ = in.Target()
		}
	}

	if unconditional {
		if bi.IsConditionalBranch {
			bi.FalseBB = bi.Next
		}

		return
	}

	next, ok := fn.LayoutNext(b.ID)
	if !ok {
		fail("falls off the end of the function: %w", ErrUnanalyzable)
		return
	}

	bi.FallThroughBB = next
	if bi.IsConditionalBranch {
		bi.FalseBB = next
	}
}

// WriteBlockInfo renders the analysis of every block.
func WriteBlockInfo(w io.Writer, fn *mir.Function, infos map[mir.BlockID]*BlockInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fn.Name)
	t.AppendHeader(table.Row{"Block", "Flags", "True", "False", "Next", "Trip"})

	name := func(id mir.BlockID) string {
		if id == mir.NoBlock {
			return ""
		}

		return fn.BlockName(id)
	}

	for _, id := range fn.Layout {
		bi, ok := infos[id]
		if !ok {
			continue
		}

		var flags []string
		for _, f := range []struct {
			set  bool
			name string
		}{
			{bi.IsEntry, "entry"},
			{bi.IsReturn, "ret"},
			{!bi.IsAnalyzable, "unanalyzable"},
			{bi.IsConditionalBranch, "cond"},
			{bi.HasSecretDependentBranch, "secret"},
			{bi.IsPartOfSensitiveRegion, "sensitive"},
			{bi.IsLoopHeader, "header"},
			{bi.IsLoopLatch, "latch"},
			{bi.IsCanonicalLoopBlock, "canonical"},
			{bi.IsAligned, "aligned"},
		} {
			if f.set {
				flags = append(flags, f.name)
			}
		}

		trip := ""
		if bi.TripCount >= 0 {
			trip = fmt.Sprint(bi.TripCount)
		}

		next := bi.Next
		if next == mir.NoBlock {
			next = bi.FallThroughBB
		}

		t.AppendRow(table.Row{
			fn.BlockName(id),
			strings.Join(flags, " "),
			name(bi.TrueBB),
			name(bi.FalseBB),
			name(next),
			trip,
		})
	}

	t.Render()
}
