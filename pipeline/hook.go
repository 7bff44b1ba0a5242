package pipeline

import (
	"sync"
	"time"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/sllvm-defend/mir"
)

// TraceHook logs pass completions at the trace level.
type TraceHook struct{}

// Func implements sim.Hook.
func (TraceHook) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosPassEnd {
		return
	}

	ev := ctx.Detail.(Event)
	fn := ctx.Item.(*mir.Function)

	mir.Trace("pass end",
		"run", ev.RunID,
		"pass", ev.Pass,
		"func", fn.Name,
		"elapsed", ev.Elapsed,
		"ok", ev.Err == nil)
}

// TimeHook sums the time spent in each pass.
type TimeHook struct {
	mu    sync.Mutex
	total map[string]time.Duration
	runs  map[string]int
}

// NewTimeHook creates an empty time hook.
func NewTimeHook() *TimeHook {
	return &TimeHook{
		total: make(map[string]time.Duration),
		runs:  make(map[string]int),
	}
}

// Func implements sim.Hook.
func (h *TimeHook) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosPassEnd {
		return
	}

	ev := ctx.Detail.(Event)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.total[ev.Pass] += ev.Elapsed
	h.runs[ev.Pass]++
}

// Total returns the time spent in a pass and how often it ran.
func (h *TimeHook) Total(pass string) (time.Duration, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.total[pass], h.runs[pass]
}
