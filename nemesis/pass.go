// Package nemesis balances secret-dependent branches so that every path
// through them takes the same number of cycles at every instruction
// position. An interrupt arriving at any point then sees the same latency
// whichever way the secret went.
package nemesis

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// Name is the name the pass reports in diagnostics.
const Name = "NemesisDefender"

// ID is the registry key of the pass.
const ID = "nemesis"

// DefaultMaxTripCount bounds the loop counter simulation.
const DefaultMaxTripCount = 1024

// Options configures the pass.
type Options struct {
	Classifier *memtrace.Classifier
	Catalogue  *memtrace.Catalogue

	// SecretRegs hold secrets on entry to functions that declare none.
	SecretRegs []msp430.Reg

	MaxTripCount int

	// Dump, when set, receives the block analysis of every function.
	Dump io.Writer
}

// Pass is the branch balancing pass.
type Pass struct {
	opts Options
}

// New creates the pass. Options left zero get defaults for the default
// memory map.
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

	if opts.SecretRegs == nil {
		opts.SecretRegs = slices.Clone(msp430.ArgRegs)
	}

	if opts.MaxTripCount <= 0 {
		opts.MaxTripCount = DefaultMaxTripCount
	}

	return &Pass{opts: opts}, nil
}

// Name returns the pass name.
func (p *Pass) Name() string { return Name }

// ID returns the registry key.
func (p *Pass) ID() string { return ID }

// Preserved lists the analyses the pass keeps valid. It rewrites the CFG,
// so none.
func (p *Pass) Preserved() []string { return nil }

// Analysis is what the pass learns about a function before editing it.
type Analysis struct {
	fn         *mir.Function
	classifier *memtrace.Classifier

	CFG   *mir.CFG
	Infos map[mir.BlockID]*BlockInfo
	RD    *ReachingDefs
	Taint *Sensitivity

	HasSecretDependentBranch bool
	Fingerprints             []Fingerprint

	regions []region
	loops   []mir.LoopExit
}

// Analyze runs the analysis steps on fn without changing it.
func (p *Pass) Analyze(fn *mir.Function) (*Analysis, error) {
	a := &Analysis{
		fn:         fn,
		classifier: p.opts.Classifier,
		Infos:      make(map[mir.BlockID]*BlockInfo),
	}

	steps := []func() error{
		a.prepare,
		a.analyzeControlFlow,
		a.computeReachingDefs,
		func() error { return a.performSensitivityAnalysis(p.secrets(fn)) },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (p *Pass) secrets(fn *mir.Function) mir.Secrets {
	if !fn.Secrets.Empty() {
		return fn.Secrets
	}

	return mir.Secrets{Regs: p.opts.SecretRegs}
}

func (a *Analysis) prepare() error {
	fn := a.fn
	if len(fn.Layout) == 0 {
		return a.fail(mir.NoBlock, nil, fmt.Errorf("no blocks: %w", ErrUnanalyzable))
	}

	for _, bid := range fn.Layout {
		bi := newBlockInfo(bid)
		bi.IsEntry = bid == fn.Entry()
		bi.analyzeTerminators(fn, fn.Blocks[bid])
		a.Infos[bid] = bi
	}

	for _, bid := range fn.Layout {
		if bi := a.Infos[bid]; !bi.IsAnalyzable {
			b := fn.Blocks[bid]

			var last *mir.Instr
			if len(b.Instrs) > 0 {
				last = b.Instrs[len(b.Instrs)-1]
			}

			return a.fail(bid, last, bi.err)
		}
	}

	return nil
}

func (a *Analysis) analyzeControlFlow() error {
	cfg, err := mir.Analyze(a.fn)
	if err != nil {
		return a.fail(mir.NoBlock, nil, err)
	}

	a.CFG = cfg

	return nil
}

func (a *Analysis) computeReachingDefs() error {
	a.RD = NewReachingDefs(a.fn)

	for _, bid := range a.fn.Layout {
		bi := a.Infos[bid]
		bi.Defs = a.RD.BlockDefs(bid)

		for i, in := range a.fn.Blocks[bid].Instrs {
			var deps []mir.InstrID
			for _, r := range in.Uses() {
				deps = append(deps, a.RD.GetDefsBefore(in.ID, r)...)
			}

			if len(deps) > 0 {
				bi.Deps[i] = dedup(deps)
			}
		}
	}

	return nil
}

func (a *Analysis) performSensitivityAnalysis(secrets mir.Secrets) error {
	a.Taint = propagateTaint(a.fn, a.RD, secrets)

	for _, bid := range a.fn.Layout {
		bi := a.Infos[bid]
		if !bi.IsConditionalBranch {
			continue
		}

		if a.Taint.secretBranch(a.RD, a.jcc(bid)) {
			bi.HasSecretDependentBranch = true
			a.HasSecretDependentBranch = true

			mir.Trace("secret branch", "func", a.fn.Name, "block", a.fn.BlockName(bid))
		}
	}

	return nil
}

// jcc returns the conditional jump ending b, or nil.
func (a *Analysis) jcc(b mir.BlockID) *mir.Instr {
	for _, in := range a.fn.Block(b).Terminators() {
		if in.IsConditional() {
			return in
		}
	}

	return nil
}

// fail wraps err in a diagnostic locating it. Errors that already carry
// one pass through.
func (a *Analysis) fail(b mir.BlockID, in *mir.Instr, err error) error {
	var d *mir.Diagnostic
	if errors.As(err, &d) {
		return err
	}

	cls := ""
	if in != nil && a.classifier != nil {
		if bid, i, ok := a.fn.Locate(in.ID); ok {
			if _, c, cerr := a.classifier.ClassifyAt(a.fn.Block(bid), i); cerr == nil {
				cls = string(c)
			}
		}
	}

	return mir.Diagnose(Name, a.fn, b, in, cls, err)
}

// Run balances the secret-dependent branches of fn. On failure fn is left
// as it was and the error is a *mir.Diagnostic.
func (p *Pass) Run(fn *mir.Function) error {
	snapshot := fn.Clone()

	if err := p.run(fn); err != nil {
		fn.Restore(snapshot)

		var d *mir.Diagnostic
		if !errors.As(err, &d) {
			err = mir.Diagnose(Name, fn, mir.NoBlock, nil, "", err)
		}

		return err
	}

	return nil
}

func (p *Pass) run(fn *mir.Function) error {
	a, err := p.Analyze(fn)
	if err != nil {
		return err
	}

	if !a.HasSecretDependentBranch {
		p.dump(a)
		mir.Trace("no secret branch", "func", fn.Name)

		return nil
	}

	merged, err := mergeReturns(fn)
	if err != nil {
		return a.fail(mir.NoBlock, nil, err)
	}

	if merged {
		if a, err = p.Analyze(fn); err != nil {
			return err
		}
	}

	if err := a.detectSensitiveRegions(); err != nil {
		return err
	}

	if err := a.analyzeLoops(p.opts.MaxTripCount); err != nil {
		return err
	}

	for _, l := range a.loops {
		if !slices.ContainsFunc(fn.Loops, func(x mir.LoopExit) bool { return x.Latch == l.Latch }) {
			fn.Loops = append(fn.Loops, l)
		}
	}

	p.dump(a)

	if err := p.canonicalize(a); err != nil {
		return err
	}

	secureCalls(fn)

	return a.finish()
}

// canonicalize aligns the regions innermost first, then checks the loops
// around secret branches.
func (p *Pass) canonicalize(a *Analysis) error {
	fn := a.fn

	var pending []region
	for _, r := range a.regions {
		if !slices.ContainsFunc(fn.Regions, func(x mir.Region) bool { return x.Branch == r.branch }) {
			pending = append(pending, r)
		}
	}

	// Shadow blocks of aligned regions fall through into their arm, so
	// terminators are only made explicit when there is work to do.
	if len(pending) > 0 {
		canonicalizeTerminators(fn)
	}

	al := &aligner{
		fn:         fn,
		classifier: p.opts.Classifier,
		catalogue:  p.opts.Catalogue,
		a:          a,
	}

	for _, r := range pending {
		if err := al.alignRegion(r); err != nil {
			return err
		}
	}

	cfg, err := mir.Analyze(fn)
	if err != nil {
		return a.fail(mir.NoBlock, nil, err)
	}

	for _, l := range cfg.Loops {
		if !slices.ContainsFunc(fn.Regions, func(r mir.Region) bool { return cfg.LoopFor(r.Branch) == l }) {
			continue
		}

		fp, err := fingerprint(fn, l)
		if err != nil {
			return a.fail(l.Header, nil, err)
		}

		a.Fingerprints = append(a.Fingerprints, fp)
	}

	return nil
}

// finish checks every region once more and marks the blocks done.
func (a *Analysis) finish() error {
	for _, r := range a.fn.Regions {
		if err := verifyRegion(a.fn, r); err != nil {
			return a.fail(r.Branch, nil, err)
		}
	}

	for _, bi := range a.Infos {
		bi.IsDone = true
	}

	return nil
}

func (p *Pass) dump(a *Analysis) {
	if p.opts.Dump != nil {
		WriteBlockInfo(p.opts.Dump, a.fn, a.Infos)
	}
}
