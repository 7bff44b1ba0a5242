package verify

import (
	"fmt"

	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// RunLint checks one function. It returns no issues for a correctly
// hardened function.
func RunLint(fn *mir.Function, opts Options) []Issue {
	var issues []Issue

	issues = append(issues, checkRegions(fn, opts)...)
	issues = append(issues, checkShadows(fn, opts)...)
	issues = append(issues, checkSecureCalls(fn)...)

	if opts.Traces && opts.Classifier != nil {
		issues = append(issues, checkClasses(fn, opts)...)
	}

	return issues
}

func validBlock(fn *mir.Function, b mir.BlockID) bool {
	return b >= 0 && int(b) < len(fn.Blocks)
}

func checkRegions(fn *mir.Function, opts Options) []Issue {
	var issues []Issue

	for _, r := range fn.Regions {
		if !validBlock(fn, r.Branch) || !validBlock(fn, r.Join) {
			is := newIssue(IssueStruct, fn, mir.NoBlock, nil, "region refers to a missing block")
			is.Details = map[string]interface{}{"branch": int(r.Branch), "join": int(r.Join)}
			issues = append(issues, is)

			continue
		}

		t, errT := mir.Walk(fn, r.Branch, r.Join, mir.TakeTrue)
		f, errF := mir.Walk(fn, r.Branch, r.Join, mir.TakeFalse)

		if err := firstErr(errT, errF); err != nil {
			issues = append(issues, newIssue(IssueStruct, fn, r.Branch, nil, err.Error()))
			continue
		}

		if is, ok := compareCycles(fn, r, t, f); !ok {
			issues = append(issues, is)
			continue
		}

		if opts.Traces && opts.Classifier != nil {
			if is, ok := compareTraces(fn, r, t, f, opts); !ok {
				issues = append(issues, is)
			}
		}
	}

	return issues
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func compareCycles(fn *mir.Function, r mir.Region, t, f []*mir.Instr) (Issue, bool) {
	ct, cf := mir.Cycles(t), mir.Cycles(f)

	for i := 0; i < max(len(ct), len(cf)); i++ {
		if i < len(ct) && i < len(cf) && ct[i] == cf[i] {
			continue
		}

		is := newIssue(IssueTiming, fn, r.Branch, nil,
			fmt.Sprintf("arms differ at position %d", i))
		is.Details = map[string]interface{}{"position": i}

		if i < len(t) {
			is.Details["true_instr"] = fn.Format(t[i])
			is.Details["true_cycles"] = ct[i]
		}

		if i < len(f) {
			is.Details["false_instr"] = fn.Format(f[i])
			is.Details["false_cycles"] = cf[i]
		}

		return is, false
	}

	return Issue{}, true
}

func compareTraces(fn *mir.Function, r mir.Region, t, f []*mir.Instr, opts Options) (Issue, bool) {
	tt, errT := PathTrace(fn, opts.Classifier, t)
	tf, errF := PathTrace(fn, opts.Classifier, f)

	if err := firstErr(errT, errF); err != nil {
		return newIssue(IssueTrace, fn, r.Branch, nil, err.Error()), false
	}

	cycle := firstDifference(tt, tf)
	if cycle == 0 {
		return Issue{}, true
	}

	is := newIssue(IssueTrace, fn, r.Branch, nil,
		fmt.Sprintf("arms access memory differently in cycle %d", cycle))
	is.Details = map[string]interface{}{
		"cycle":       cycle,
		"true_trace":  string(tt),
		"false_trace": string(tf),
	}

	return is, false
}

// checkShadows makes sure inserted instructions only write r3 or the
// scratch words and never transfer control.
func checkShadows(fn *mir.Function, opts Options) []Issue {
	var issues []Issue

	scratch := map[uint16]bool{
		opts.Scratch.Data:       true,
		opts.Scratch.Peripheral: true,
	}

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]

		for _, in := range b.Instrs {
			if !in.IsShadow() && !in.IsPad() {
				continue
			}

			if in.IsTerminator() || in.IsCall() {
				issues = append(issues, newIssue(IssueSideEffect, fn, bid, in, "inserted instruction transfers control"))
				continue
			}

			for _, r := range in.Defs() {
				if r != msp430.CG {
					is := newIssue(IssueSideEffect, fn, bid, in, "inserted instruction writes a register")
					is.Details = map[string]interface{}{"reg": r.String()}
					issues = append(issues, is)
				}
			}

			for _, o := range in.MemWrites() {
				addr, ok := o.Address()
				if ok && scratch[addr] {
					continue
				}

				is := newIssue(IssueSideEffect, fn, bid, in, "inserted instruction writes outside the scratch words")
				is.Details = map[string]interface{}{"operand": o.String()}
				issues = append(issues, is)
			}
		}
	}

	return issues
}

// checkClasses makes sure every timed instruction of a sensitive block
// has a known trace class.
func checkClasses(fn *mir.Function, opts Options) []Issue {
	var issues []Issue

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]
		if !b.Sensitive {
			continue
		}

		for i, in := range b.Instrs {
			if in.IsPseudo() {
				continue
			}

			_, cls, err := opts.Classifier.ClassifyAt(b, i)
			if err == nil && !cls.Sentinel() {
				continue
			}

			msg := "instruction has no trace class"
			if err != nil {
				msg = err.Error()
			}

			is := newIssue(IssueTrace, fn, bid, in, msg)
			if cls != "" {
				is.Details = map[string]interface{}{"class": string(cls)}
			}

			issues = append(issues, is)
		}
	}

	return issues
}

func checkSecureCalls(fn *mir.Function) []Issue {
	var issues []Issue

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]
		if !b.Sensitive {
			continue
		}

		for i, in := range b.Instrs {
			if !in.IsCall() {
				continue
			}

			if i > 0 && i+1 < len(b.Instrs) &&
				b.Instrs[i-1].Op == msp430.SecureEnter &&
				b.Instrs[i+1].Op == msp430.SecureExit {
				continue
			}

			issues = append(issues, newIssue(IssueSecureCall, fn, bid, in, "call in a sensitive block is not bracketed"))
		}
	}

	return issues
}
