// Package dma makes the memory-access trace of sensitive code independent
// of the path taken, so that a DMA controller stealing bus cycles learns
// nothing about secrets.
package dma

import (
	"errors"
	"fmt"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
)

// Name is the name the pass reports in diagnostics.
const Name = "DMADefender"

// ID is the registry key of the pass.
const ID = "dma"

// ErrIrreconcilable is returned when no padding turns the class of an
// instruction into the required one.
var ErrIrreconcilable = errors.New("trace class cannot be padded to the required class")

// Options configures the pass.
type Options struct {
	Classifier *memtrace.Classifier
	Catalogue  *memtrace.Catalogue
	Policy     Policy
}

// Pass is the trace normalization pass.
type Pass struct {
	opts Options
}

// New creates the pass. Options left zero get the default table, scratch
// locations and the shadow policy.
func New(opts Options) (*Pass, error) {
	if opts.Classifier == nil {
		t := memtrace.DefaultTable()
		opts.Classifier = memtrace.NewClassifier(t, memtrace.NewResolver(t.MemoryMap()))
	}

	if opts.Catalogue == nil {
		cat, err := memtrace.NewCatalogue(opts.Classifier,
			memtrace.DefaultScratch(opts.Classifier.Resolver().Map))
		if err != nil {
			return nil, err
		}

		opts.Catalogue = cat
	}

	if opts.Policy == nil {
		opts.Policy = ShadowPolicy{Classifier: opts.Classifier}
	}

	return &Pass{opts: opts}, nil
}

// Name returns the pass name.
func (p *Pass) Name() string { return Name }

// ID returns the registry key.
func (p *Pass) ID() string { return ID }

// Preserved lists the analyses the pass keeps valid. It only inserts and
// replaces straight-line instructions, so the CFG survives.
func (p *Pass) Preserved() []string { return []string{"cfg"} }

// Stats counts what a run changed.
type Stats struct {
	Checked  int
	Replaced int
	Padded   int
}

// Run normalizes every instruction of the sensitive blocks of fn. On
// failure fn is left as it was and the error is a *mir.Diagnostic.
func (p *Pass) Run(fn *mir.Function) error {
	_, err := p.RunStats(fn)
	return err
}

// RunStats is Run, reporting what changed.
func (p *Pass) RunStats(fn *mir.Function) (Stats, error) {
	snapshot := fn.Clone()

	var st Stats

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]
		if !b.Sensitive {
			continue
		}

		for i := 0; i < len(b.Instrs); i++ {
			in := b.Instrs[i]
			if in.IsPseudo() || in.IsPad() {
				continue
			}

			st.Checked++

			cls, err := p.compensate(fn, b, i, &st)
			if err != nil {
				fn.Restore(snapshot)
				return Stats{}, mir.Diagnose(Name, fn, bid, in, string(cls), err)
			}
		}
	}

	mir.Trace("normalized traces",
		"func", fn.Name,
		"checked", st.Checked,
		"replaced", st.Replaced,
		"padded", st.Padded)

	return st, nil
}

// compensate brings the instruction at index i of b to the class the
// policy requires. It returns the class the instruction has.
func (p *Pass) compensate(fn *mir.Function, b *mir.Block, i int, st *Stats) (memtrace.Class, error) {
	in := b.Instrs[i]

	_, cls, err := p.opts.Classifier.ClassifyAt(b, i)
	if err != nil {
		return cls, err
	}

	if cls.Sentinel() {
		return cls, fmt.Errorf("%q in a sensitive block: %w", cls, memtrace.ErrUnexpectedLatency)
	}

	req, err := p.opts.Policy.Required(fn, b, i)
	if err != nil {
		return cls, err
	}

	if req.Sentinel() {
		return cls, fmt.Errorf("required class %q: %w", req, memtrace.ErrUnexpectedLatency)
	}

	pads := padsAfter(b, i)

	got := cls
	for _, pad := range b.Instrs[i+1 : i+1+pads] {
		_, pc, err := p.opts.Classifier.ClassifyAt(b, b.IndexOf(pad.ID))
		if err != nil {
			return cls, err
		}

		if got, err = memtrace.Concat(got, pc); err != nil {
			return cls, err
		}
	}

	if got == req {
		return cls, nil
	}

	if in.IsShadow() && req.Cycles() == cls.Cycles() && pads == 0 {
		tpl, err := p.opts.Catalogue.Lookup(req)
		if err != nil {
			return cls, err
		}

		repl := tpl.Instantiate(fn)
		repl.ShadowOf = in.ShadowOf
		b.Replace(i, repl)
		st.Replaced++

		mir.Trace("replaced shadow",
			"func", fn.Name,
			"block", b.Name,
			"from", fn.Format(in),
			"to", fn.Format(repl),
			"class", req)

		return cls, nil
	}

	suffix, ok := memtrace.Suffix(req, cls)
	if !ok {
		return cls, fmt.Errorf("%q to %q: %w", cls, req, ErrIrreconcilable)
	}

	tpl, err := p.opts.Catalogue.Lookup(suffix)
	if err != nil {
		return cls, err
	}

	pad := tpl.Instantiate(fn)
	pad.PadOf = in.ID

	for range pads {
		b.Remove(i + 1)
	}

	b.Insert(i+1, pad)
	st.Padded++

	mir.Trace("padded instruction",
		"func", fn.Name,
		"block", b.Name,
		"instr", fn.Format(in),
		"pad", fn.Format(pad),
		"class", req)

	return cls, nil
}

// padsAfter counts the padding placed after the instruction at index i.
func padsAfter(b *mir.Block, i int) int {
	id := b.Instrs[i].ID

	n := 0
	for _, in := range b.Instrs[i+1:] {
		if in.PadOf != id {
			break
		}

		n++
	}

	return n
}
