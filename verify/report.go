package verify

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/sllvm-defend/mir"
)

// VerificationReport collects the issues of a set of functions and the
// diagnostics of the passes that failed on them.
type VerificationReport struct {
	FunctionCount int
	RegionCount   int
	Issues        []Issue
	ByType        map[IssueType][]Issue
	Diagnostics   []*mir.Diagnostic
}

// GenerateReport lints every function. diags are pass failures to
// include in the report.
func GenerateReport(fns []*mir.Function, opts Options, diags []*mir.Diagnostic) *VerificationReport {
	r := &VerificationReport{
		FunctionCount: len(fns),
		ByType:        make(map[IssueType][]Issue),
		Diagnostics:   slices.Clone(diags),
	}

	failed := make(map[string]bool)
	for _, d := range diags {
		failed[d.Func] = true
	}

	for _, fn := range fns {
		if failed[fn.Name] {
			continue
		}

		r.RegionCount += len(fn.Regions)
		r.Issues = append(r.Issues, RunLint(fn, opts)...)
	}

	for _, is := range r.Issues {
		r.ByType[is.Type] = append(r.ByType[is.Type], is)
	}

	return r
}

// Passed reports whether no function had issues or failed a pass.
func (r *VerificationReport) Passed() bool {
	return len(r.Issues) == 0 && len(r.Diagnostics) == 0
}

// WriteReport writes the report as tables.
func (r *VerificationReport) WriteReport(w io.Writer) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle("Verification Summary")
	summary.AppendRows([]table.Row{
		{"Functions", r.FunctionCount},
		{"Regions", r.RegionCount},
		{"Pass failures", len(r.Diagnostics)},
	})

	for _, t := range IssueTypes {
		summary.AppendRow(table.Row{string(t), len(r.ByType[t])})
	}

	summary.Render()

	if len(r.Diagnostics) > 0 {
		dt := table.NewWriter()
		dt.SetOutputMirror(w)
		dt.SetTitle("Pass Failures")
		dt.AppendHeader(table.Row{"Pass", "Function", "Block", "Instruction", "Error"})

		for _, d := range r.Diagnostics {
			dt.AppendRow(table.Row{d.Pass, d.Func, d.Block, d.Instr, d.Err})
		}

		dt.Render()
	}

	if len(r.Issues) > 0 {
		it := table.NewWriter()
		it.SetOutputMirror(w)
		it.SetTitle("Issues")
		it.AppendHeader(table.Row{"Type", "Function", "Block", "Instruction", "Message", "Details"})

		for _, is := range r.Issues {
			it.AppendRow(table.Row{is.Type, is.Func, is.Block, is.Instr, is.Message, formatDetails(is.Details)})
		}

		it.Render()
	}

	if r.Passed() {
		fmt.Fprintln(w, "PASSED")
	} else {
		fmt.Fprintln(w, "FAILED")
	}
}

func formatDetails(d map[string]interface{}) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}

		s += fmt.Sprintf("%s=%v", k, d[k])
	}

	return s
}

// SaveReportToFile saves the report to a file.
func (r *VerificationReport) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	r.WriteReport(file)

	return nil
}
