package mir

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// LevelTrace sits between info and warn so that pass decisions can be
// switched on without the rest of the debug output.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs a pass decision.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// WriteFunction renders fn as a table of blocks, one instruction per
// line.
func WriteFunction(w io.Writer, fn *Function) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fn.Name)
	t.AppendHeader(table.Row{"Block", "Succs", "Flags", "Instructions"})

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]

		succs := make([]string, 0, len(b.Succs))
		for _, s := range b.Succs {
			succs = append(succs, fn.BlockName(s))
		}

		flags := ""
		if b.Sensitive {
			flags = "S"
		}

		lines := make([]string, 0, len(b.Instrs))
		for _, in := range b.Instrs {
			line := fmt.Sprintf("%4d  %s", in.ID, fn.Format(in))

			switch {
			case in.IsShadow():
				line += fmt.Sprintf("  ; shadow of #%d", in.ShadowOf)
			case in.IsPad():
				line += fmt.Sprintf("  ; pad of #%d", in.PadOf)
			}

			lines = append(lines, line)
		}

		t.AppendRow(table.Row{
			b.Name,
			strings.Join(succs, " "),
			flags,
			strings.Join(lines, "\n"),
		})
		t.AppendSeparator()
	}

	t.Render()
}
