package mir

import (
	"fmt"
	"strings"
)

// Diagnostic locates a pass failure: the function, block and instruction
// involved, and the trace class when one was computed.
type Diagnostic struct {
	Pass  string
	Func  string
	Block string
	Instr string
	Class string
	Err   error
}

// Diagnose builds a diagnostic. b may be NoBlock and in may be nil.
func Diagnose(pass string, fn *Function, b BlockID, in *Instr, class string, err error) *Diagnostic {
	d := &Diagnostic{
		Pass:  pass,
		Func:  fn.Name,
		Class: class,
		Err:   err,
	}

	if b != NoBlock {
		d.Block = fn.BlockName(b)
	}

	if in != nil {
		d.Instr = fmt.Sprintf("#%d %s", in.ID, fn.Format(in))
	}

	return d
}

func (d *Diagnostic) Error() string {
	var sb strings.Builder

	sb.WriteString(d.Pass)
	sb.WriteString(": function ")
	sb.WriteString(d.Func)

	if d.Block != "" {
		sb.WriteString(", block ")
		sb.WriteString(d.Block)
	}

	if d.Instr != "" {
		fmt.Fprintf(&sb, ", instruction `%s`", d.Instr)
	}

	if d.Class != "" {
		fmt.Fprintf(&sb, ", class `%s`", d.Class)
	}

	fmt.Fprintf(&sb, ": %v", d.Err)

	return sb.String()
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}
