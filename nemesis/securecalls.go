package nemesis

import (
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// secureCalls brackets every call in a sensitive block with the secure
// entry and exit markers. Calls already bracketed are left alone. It
// returns the number of calls wrapped.
func secureCalls(fn *mir.Function) int {
	n := 0

	for _, bid := range fn.Layout {
		b := fn.Blocks[bid]
		if !b.Sensitive {
			continue
		}

		for i := 0; i < len(b.Instrs); i++ {
			in := b.Instrs[i]
			if !in.IsCall() || wrapped(b, i) {
				continue
			}

			b.Insert(i+1, fn.NewInstr(msp430.SecureExit))
			b.Insert(i, fn.NewInstr(msp430.SecureEnter))
			i += 2
			n++

			mir.Trace("secured call", "func", fn.Name, "block", b.Name, "call", fn.Format(in))
		}
	}

	return n
}

func wrapped(b *mir.Block, i int) bool {
	return i > 0 && i+1 < len(b.Instrs) &&
		b.Instrs[i-1].Op == msp430.SecureEnter &&
		b.Instrs[i+1].Op == msp430.SecureExit
}
