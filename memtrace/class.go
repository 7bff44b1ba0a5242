// Package memtrace classifies MSP430 instructions by the memory accesses
// they make in each cycle.
//
// A trace class is written "<n> | <peripheral> | <data> | <program>": n is
// the cycle count and each group has one bit per cycle, set when the
// instruction accesses that region in that cycle. Program-memory bits
// include instruction fetches. "1 | 0 | 0 | 1" is a register move: one
// cycle, one fetch.
//
// The table of classes is generated from a declarative list of access
// templates, one per instruction format and addressing-mode combination,
// evaluated for every supported pair of source and destination regions.
package memtrace

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Class is a trace class string.
type Class string

// Sentinel classes. NoClass marks instructions without a memory trace of
// their own, SimulationFails combinations that were never characterized.
const (
	NoClass         Class = "no class"
	SimulationFails Class = "simulation fails"
)

// ErrBadClass is returned for strings that are not trace classes.
var ErrBadClass = errors.New("malformed trace class")

// Sentinel reports whether c is one of the sentinel classes.
func (c Class) Sentinel() bool {
	return c == NoClass || c == SimulationFails
}

// Cycles returns the cycle count of the class, 0 for sentinels.
func (c Class) Cycles() int {
	t, err := Parse(c)
	if err != nil {
		return 0
	}

	return t.Cycles
}

// Trace is a decoded class. Index i of each row is cycle i+1.
type Trace struct {
	Cycles     int
	Peripheral []bool
	Data       []bool
	Program    []bool
}

// NewTrace returns an empty trace of n cycles.
func NewTrace(n int) Trace {
	return Trace{
		Cycles:     n,
		Peripheral: make([]bool, n),
		Data:       make([]bool, n),
		Program:    make([]bool, n),
	}
}

// Parse decodes a class string.
func Parse(c Class) (Trace, error) {
	parts := strings.Split(string(c), "|")
	if len(parts) != 4 {
		return Trace{}, fmt.Errorf("%q: %w", c, ErrBadClass)
	}

	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return Trace{}, fmt.Errorf("%q: %w", c, ErrBadClass)
	}

	t := NewTrace(n)
	for i, row := range [][]bool{t.Peripheral, t.Data, t.Program} {
		bits := strings.TrimSpace(parts[i+1])
		if len(bits) != n {
			return Trace{}, fmt.Errorf("%q: %w", c, ErrBadClass)
		}

		for j, b := range bits {
			switch b {
			case '0':
			case '1':
				row[j] = true
			default:
				return Trace{}, fmt.Errorf("%q: %w", c, ErrBadClass)
			}
		}
	}

	return t, nil
}

// Class encodes the trace.
func (t Trace) Class() Class {
	row := func(r []bool) string {
		var sb strings.Builder
		for _, b := range r {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}

		return sb.String()
	}

	return Class(fmt.Sprintf("%d | %s | %s | %s",
		t.Cycles, row(t.Peripheral), row(t.Data), row(t.Program)))
}

// Concat returns the class of executing a and then b.
func Concat(a, b Class) (Class, error) {
	ta, err := Parse(a)
	if err != nil {
		return "", err
	}

	tb, err := Parse(b)
	if err != nil {
		return "", err
	}

	return Trace{
		Cycles:     ta.Cycles + tb.Cycles,
		Peripheral: append(slices.Clone(ta.Peripheral), tb.Peripheral...),
		Data:       append(slices.Clone(ta.Data), tb.Data...),
		Program:    append(slices.Clone(ta.Program), tb.Program...),
	}.Class(), nil
}

// Suffix returns the class r such that Concat(prefix, r) == c.
func Suffix(c, prefix Class) (Class, bool) {
	tc, err := Parse(c)
	if err != nil {
		return "", false
	}

	tp, err := Parse(prefix)
	if err != nil || tp.Cycles >= tc.Cycles {
		return "", false
	}

	n := tp.Cycles
	if !slices.Equal(tc.Peripheral[:n], tp.Peripheral) ||
		!slices.Equal(tc.Data[:n], tp.Data) ||
		!slices.Equal(tc.Program[:n], tp.Program) {
		return "", false
	}

	return Trace{
		Cycles:     tc.Cycles - n,
		Peripheral: tc.Peripheral[n:],
		Data:       tc.Data[n:],
		Program:    tc.Program[n:],
	}.Class(), true
}

// Code is the enumeration of trace classes. Values carry no meaning
// beyond telling classes apart.
type Code uint8

// Sentinel codes. Known classes follow them.
const (
	CodeNone Code = iota
	CodeSimulationFails
	codeFirstKnown
)

// knownClasses are the access patterns observed on the hardware, ordered
// by cycle count.
var knownClasses = []Class{
	"1 | 0 | 0 | 1",

	"2 | 00 | 00 | 11",
	"2 | 00 | 10 | 01",
	"2 | 10 | 00 | 01",

	"3 | 000 | 000 | 001",
	"3 | 000 | 000 | 111",
	"3 | 000 | 001 | 001",
	"3 | 000 | 010 | 101",
	"3 | 000 | 100 | 000",
	"3 | 000 | 101 | 001",
	"3 | 010 | 000 | 101",
	"3 | 101 | 000 | 001",

	"4 | 0000 | 0001 | 1001",
	"4 | 0000 | 0101 | 1001",
	"4 | 0001 | 0000 | 1001",
	"4 | 0101 | 0000 | 1001",

	"5 | 00000 | 00001 | 11001",
	"5 | 00000 | 00101 | 11001",
	"5 | 00000 | 10000 | 00000",
	"5 | 00000 | 10001 | 10001",
	"5 | 00000 | 10101 | 10001",
	"5 | 00001 | 00000 | 11001",
	"5 | 00001 | 10000 | 10001",
	"5 | 00101 | 00000 | 11001",
	"5 | 00101 | 10000 | 10001",
	"5 | 10000 | 00001 | 10001",
	"5 | 10000 | 00101 | 10001",
	"5 | 10001 | 00000 | 10001",
	"5 | 10101 | 00000 | 10001",

	"6 | 000000 | 000001 | 111001",
	"6 | 000000 | 000101 | 111001",
	"6 | 000000 | 010001 | 110001",
	"6 | 000000 | 010101 | 110001",
	"6 | 000001 | 000000 | 111001",
	"6 | 000001 | 010000 | 110001",
	"6 | 000101 | 000000 | 111001",
	"6 | 000101 | 010000 | 110001",
	"6 | 010000 | 000001 | 110001",
	"6 | 010000 | 000101 | 110001",
	"6 | 010001 | 000000 | 110001",
	"6 | 010101 | 000000 | 110001",
}

var codeOf = func() map[Class]Code {
	m := map[Class]Code{
		NoClass:         CodeNone,
		SimulationFails: CodeSimulationFails,
	}

	for i, c := range knownClasses {
		m[c] = codeFirstKnown + Code(i)
	}

	return m
}()

// KnownClasses returns the non-sentinel classes.
func KnownClasses() []Class {
	return slices.Clone(knownClasses)
}

// CodeOf maps a class string to its code.
func CodeOf(c Class) (Code, bool) {
	code, ok := codeOf[c]
	return code, ok
}

// Class returns the class string of a code.
func (c Code) Class() Class {
	switch {
	case c == CodeNone:
		return NoClass
	case c == CodeSimulationFails:
		return SimulationFails
	case int(c-codeFirstKnown) < len(knownClasses):
		return knownClasses[c-codeFirstKnown]
	}

	return SimulationFails
}

func (c Code) String() string {
	return string(c.Class())
}
