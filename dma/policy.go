package dma

import (
	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
)

// Policy decides which trace class an instruction in a sensitive block
// must show.
type Policy interface {
	Required(fn *mir.Function, b *mir.Block, i int) (memtrace.Class, error)
}

// ShadowPolicy requires shadows to show the class of the instruction they
// stand in for, with its real memory regions. Other instructions keep
// their own class.
type ShadowPolicy struct {
	Classifier *memtrace.Classifier
}

// Required implements Policy.
func (p ShadowPolicy) Required(fn *mir.Function, b *mir.Block, i int) (memtrace.Class, error) {
	in := b.Instrs[i]
	if !in.IsShadow() {
		_, cls, err := p.Classifier.ClassifyAt(b, i)
		return cls, err
	}

	if bid, j, ok := fn.Locate(in.ShadowOf); ok {
		_, cls, err := p.Classifier.ClassifyAt(fn.Block(bid), j)
		return cls, err
	}

	orig := fn.Instr(in.ShadowOf)
	r := p.Classifier.Resolver()
	_, cls, err := p.Classifier.Classify(orig, r.Operand(nil, 0, orig.Src()), r.Operand(nil, 0, orig.Dst()))

	return cls, err
}

// UniformPolicy requires every instruction to show the same class.
// Shorter instructions are padded up to it. Control transfers keep their
// own class, since nothing may follow them in a block.
type UniformPolicy struct {
	Class      memtrace.Class
	Classifier *memtrace.Classifier
}

// Required implements Policy.
func (p UniformPolicy) Required(_ *mir.Function, b *mir.Block, i int) (memtrace.Class, error) {
	if in := b.Instrs[i]; in.IsTerminator() || in.IsCall() {
		_, cls, err := p.Classifier.ClassifyAt(b, i)
		return cls, err
	}

	return p.Class, nil
}
