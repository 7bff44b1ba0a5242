// Package verify checks hardened functions after the passes ran.
//
// The checks are independent of the passes and only read the function:
//
//   - STRUCT: recorded regions name real blocks and every branch can be
//     walked on both arms
//   - TIMING: both arms of each region take the same number of cycles at
//     every position
//   - TRACE: both arms of each region make the same memory accesses in
//     every cycle, and every instruction of a sensitive block has a known
//     trace class
//   - SIDE_EFFECT: shadow and pad instructions write only the constant
//     generator or the scratch words
//   - SECURE_CALL: calls in sensitive blocks sit between the secure entry
//     and exit markers
//
// The trace checks only hold once trace normalization ran, so they are
// enabled separately.
package verify

import (
	"fmt"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
)

// IssueType categorizes issues.
type IssueType string

const (
	IssueStruct     IssueType = "STRUCT"      // Region bookkeeping or unwalkable paths
	IssueTiming     IssueType = "TIMING"      // Arms differ in latency
	IssueTrace      IssueType = "TRACE"       // Arms differ in memory accesses
	IssueSideEffect IssueType = "SIDE_EFFECT" // A shadow or pad changes state
	IssueSecureCall IssueType = "SECURE_CALL" // An unbracketed call
)

// IssueTypes lists the issue types in report order.
var IssueTypes = []IssueType{IssueStruct, IssueTiming, IssueTrace, IssueSideEffect, IssueSecureCall}

// Issue is a single violated property.
type Issue struct {
	Type    IssueType
	Func    string
	Block   string // empty if not applicable
	Instr   string // empty if not applicable
	Message string
	Details map[string]interface{}
}

func (i Issue) String() string {
	loc := i.Func
	if i.Block != "" {
		loc += "/" + i.Block
	}

	if i.Instr != "" {
		loc += fmt.Sprintf(" `%s`", i.Instr)
	}

	return fmt.Sprintf("[%s] %s: %s", i.Type, loc, i.Message)
}

// Options configures the checks.
type Options struct {
	Classifier *memtrace.Classifier
	Scratch    memtrace.Scratch
	// Traces enables the memory trace checks.
	Traces bool
}

func newIssue(t IssueType, fn *mir.Function, b mir.BlockID, in *mir.Instr, msg string) Issue {
	is := Issue{Type: t, Func: fn.Name, Message: msg}

	if b != mir.NoBlock {
		is.Block = fn.BlockName(b)
	}

	if in != nil {
		is.Instr = fn.Format(in)
	}

	return is
}
