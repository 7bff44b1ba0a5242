package memtrace

import (
	"fmt"

	"github.com/sarchlab/sllvm-defend/msp430"
	"github.com/sarchlab/sllvm-defend/mir"
)

// Classifier maps instructions to trace classes.
type Classifier struct {
	table    *Table
	resolver Resolver
}

// NewClassifier creates a classifier over a table.
func NewClassifier(t *Table, r Resolver) *Classifier {
	return &Classifier{table: t, resolver: r}
}

// Resolver returns the region resolver the classifier uses.
func (c *Classifier) Resolver() Resolver {
	return c.resolver
}

// Classify returns the class of an instruction whose operands reference
// the given regions. Regions of operands that are not memory accesses are
// ignored. A pair without a table column, such as a write to program
// memory, is an error.
func (c *Classifier) Classify(in *mir.Instr, src, dst msp430.Region) (Code, Class, error) {
	if o := in.Src(); o == nil || !o.IsMemory() {
		src = msp430.RegionData
	}

	if o := in.Dst(); o == nil || !o.IsMemory() {
		dst = msp430.RegionData
	}

	cls, err := c.table.Class(in.Op, Pair{Src: src, Dst: dst})
	if err != nil {
		return CodeSimulationFails, "", fmt.Errorf("%s: %w", in, err)
	}

	code, ok := CodeOf(cls)
	if !ok {
		return CodeSimulationFails, cls, fmt.Errorf("%s: %q: %w", in, cls, ErrUnexpectedLatency)
	}

	return code, cls, nil
}

// ClassifyAt classifies the instruction at index i of b, resolving its
// regions from the surrounding code.
func (c *Classifier) ClassifyAt(b *mir.Block, i int) (Code, Class, error) {
	p := c.resolver.Regions(b, i)
	return c.Classify(b.Instrs[i], p.Src, p.Dst)
}

// ClassifyNormalized is ClassifyAt with peripheral accesses counted as
// data accesses.
func (c *Classifier) ClassifyNormalized(b *mir.Block, i int) (Code, Class, error) {
	p := c.resolver.Regions(b, i).Normalized()
	return c.Classify(b.Instrs[i], p.Src, p.Dst)
}
