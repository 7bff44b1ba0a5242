package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/sllvm-defend/mir"
)

// HookPosPassStart marks a pass starting on a function.
var HookPosPassStart = &sim.HookPos{Name: "Pass Start"}

// HookPosPassEnd marks a pass finishing on a function, successfully or
// not.
var HookPosPassEnd = &sim.HookPos{Name: "Pass End"}

// HookPosDiagnostic marks a pass failing on a function.
var HookPosDiagnostic = &sim.HookPos{Name: "Pass Diagnostic"}

// Event is the detail of every hook the manager invokes. The hook item
// is the function.
type Event struct {
	RunID   string
	Pass    string
	Elapsed time.Duration
	// Invalidated lists the analyses the pass did not preserve.
	Invalidated []string
	Err         error
}

// analyses the manager tracks across passes.
var analyses = []string{"cfg", "loops", "regions"}

// DiagnosticSink receives pass failures.
type DiagnosticSink interface {
	Report(runID string, d *mir.Diagnostic)
}

// Manager runs a fixed sequence of passes over functions. Hooks may be
// invoked from several goroutines by RunAll.
type Manager struct {
	sim.HookableBase

	passes []Pass
	sink   DiagnosticSink
	runID  xid.ID
}

// NewManager creates a manager. sink may be nil.
func NewManager(passes []Pass, sink DiagnosticSink) *Manager {
	return &Manager{
		passes: slices.Clone(passes),
		sink:   sink,
		runID:  xid.New(),
	}
}

// RunID identifies this manager's run in logs and reports.
func (m *Manager) RunID() string {
	return m.runID.String()
}

// Run applies every pass to fn in order, stopping at the first failure.
// A failing pass leaves fn as it was before that pass.
func (m *Manager) Run(fn *mir.Function) error {
	for _, p := range m.passes {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosPassStart,
			Item:   fn,
			Detail: Event{RunID: m.RunID(), Pass: p.Name()},
		})

		start := time.Now()
		err := p.Run(fn)

		ev := Event{
			RunID:       m.RunID(),
			Pass:        p.Name(),
			Elapsed:     time.Since(start),
			Invalidated: invalidated(p),
			Err:         err,
		}

		m.InvokeHook(sim.HookCtx{Domain: m, Pos: HookPosPassEnd, Item: fn, Detail: ev})

		if err != nil {
			m.report(fn, p, err, ev)
			return err
		}

		mir.Trace("pass done",
			"run", m.RunID(),
			"pass", p.Name(),
			"func", fn.Name,
			"invalidated", ev.Invalidated)
	}

	return nil
}

func (m *Manager) report(fn *mir.Function, p Pass, err error, ev Event) {
	var d *mir.Diagnostic
	if !errors.As(err, &d) {
		d = mir.Diagnose(p.Name(), fn, mir.NoBlock, nil, "", err)
	}

	m.InvokeHook(sim.HookCtx{Domain: m, Pos: HookPosDiagnostic, Item: fn, Detail: ev})

	if m.sink != nil {
		m.sink.Report(m.RunID(), d)
	}
}

func invalidated(p Pass) []string {
	kept := p.Preserved()

	var out []string
	for _, a := range analyses {
		if !slices.Contains(kept, a) {
			out = append(out, a)
		}
	}

	return out
}

// Result is the outcome for one function.
type Result struct {
	Func string
	Err  error
}

// RunAll runs the passes over every function with up to workers
// functions in flight. Functions share nothing mutable, so a failure in
// one does not affect the others. Results are in input order. Functions
// not started when ctx is done get ctx's error.
func (m *Manager) RunAll(ctx context.Context, fns []*mir.Function, workers int) []Result {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(fns))
	jobs := make(chan int)

	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range jobs {
				results[i] = Result{Func: fns[i].Name, Err: m.Run(fns[i])}
			}
		}()
	}

	next := 0

feed:
	for ; next < len(fns); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}

	close(jobs)
	wg.Wait()

	for i := next; i < len(fns); i++ {
		results[i] = Result{Func: fns[i].Name, Err: ctx.Err()}
	}

	return results
}
