package memtrace

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// Entry is one cell of the table: the class of an opcode under a region
// pair, and assembly snippets exhibiting it.
type Entry struct {
	Fixtures []string
	Class    Class
}

// Table maps opcodes and region pairs to trace classes.
type Table struct {
	mm      msp430.MemoryMap
	entries [][]Entry
}

// Generate evaluates the access rules for every opcode and region pair.
// Fixture addresses are drawn from mm.
func Generate(mm msp430.MemoryMap) *Table {
	ops := msp430.Opcodes()

	t := &Table{
		mm:      mm,
		entries: make([][]Entry, len(ops)+1),
	}

	for _, op := range ops {
		d := op.Desc()
		row := make([]Entry, len(Pairs))

		for i, p := range Pairs {
			row[i] = Entry{
				Fixtures: fixtures(d, p, mm),
				Class:    classOf(d, p),
			}
		}

		t.entries[op] = row
	}

	return t
}

var defaultTable = sync.OnceValue(func() *Table {
	return Generate(msp430.DefaultMemoryMap())
})

// DefaultTable is the table for the default memory map.
func DefaultTable() *Table {
	return defaultTable()
}

// MemoryMap returns the memory map fixtures were drawn from.
func (t *Table) MemoryMap() msp430.MemoryMap {
	return t.mm
}

// Entry returns the cell of an opcode and region pair.
func (t *Table) Entry(op msp430.Opcode, p Pair) (Entry, error) {
	i, err := p.Index()
	if err != nil {
		return Entry{}, err
	}

	if !op.Valid() || int(op) >= len(t.entries) {
		return Entry{}, fmt.Errorf("opcode %d: %w", op, ErrUnexpectedLatency)
	}

	return t.entries[op][i], nil
}

// Class returns the trace class of an opcode under a region pair.
func (t *Table) Class(op msp430.Opcode, p Pair) (Class, error) {
	e, err := t.Entry(op, p)
	if err != nil {
		return "", err
	}

	return e.Class, nil
}

// WriteTable renders the classes, one opcode per row.
func (t *Table) WriteTable(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := table.Row{"Opcode"}
	for _, p := range Pairs {
		header = append(header, p.String())
	}

	tw.AppendHeader(header)

	for _, op := range msp430.Opcodes() {
		row := table.Row{op.String()}
		for _, e := range t.entries[op] {
			row = append(row, string(e.Class))
		}

		tw.AppendRow(row)
	}

	tw.Render()
}

// WriteGo emits the table as Go source declaring a map from opcode name
// to the classes of each region pair.
func (t *Table) WriteGo(w io.Writer, pkg, name string) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "// Code generated by memtracegen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&sb, "package %s\n\n", pkg)

	pairs := make([]string, len(Pairs))
	for i, p := range Pairs {
		pairs[i] = p.String()
	}

	fmt.Fprintf(&sb, "// %s columns: %s.\n", name, strings.Join(pairs, ", "))
	fmt.Fprintf(&sb, "var %s = map[string][%d]string{\n", name, len(Pairs))

	for _, op := range msp430.Opcodes() {
		cells := make([]string, 0, len(Pairs))
		for _, e := range t.entries[op] {
			cells = append(cells, fmt.Sprintf("%q", e.Class))
		}

		fmt.Fprintf(&sb, "\t%q: {%s},\n", op.String(), strings.Join(cells, ", "))
	}

	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())

	return err
}
