package pipeline

import (
	"io"
	"log/slog"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/sllvm-defend/mir"
)

// LogSink logs diagnostics as errors.
type LogSink struct {
	Logger *slog.Logger
}

// Report implements DiagnosticSink.
func (s LogSink) Report(runID string, d *mir.Diagnostic) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}

	l.Error("pass failed",
		"run", runID,
		"pass", d.Pass,
		"func", d.Func,
		"block", d.Block,
		"instr", d.Instr,
		"class", d.Class,
		"err", d.Err)
}

// ListSink keeps diagnostics in memory. It is safe for concurrent use.
type ListSink struct {
	mu    sync.Mutex
	diags []*mir.Diagnostic
}

// Report implements DiagnosticSink.
func (s *ListSink) Report(_ string, d *mir.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diags = append(s.diags, d)
}

// Diagnostics returns the collected diagnostics.
func (s *ListSink) Diagnostics() []*mir.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*mir.Diagnostic, len(s.diags))
	copy(out, s.diags)

	return out
}

// WriteTable renders the collected diagnostics.
func (s *ListSink) WriteTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Pass", "Function", "Block", "Instruction", "Class", "Error"})

	for _, d := range s.Diagnostics() {
		t.AppendRow(table.Row{d.Pass, d.Func, d.Block, d.Instr, d.Class, d.Err})
	}

	t.Render()
}

// MultiSink reports to several sinks.
type MultiSink []DiagnosticSink

// Report implements DiagnosticSink.
func (s MultiSink) Report(runID string, d *mir.Diagnostic) {
	for _, sink := range s {
		sink.Report(runID, d)
	}
}
