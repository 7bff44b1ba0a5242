package verify

import (
	"fmt"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
)

// PathTrace returns the memory trace of a walked instruction sequence:
// the classes of its instructions, one after another. Each instruction
// is classified where it sits in fn.
func PathTrace(fn *mir.Function, c *memtrace.Classifier, seq []*mir.Instr) (memtrace.Class, error) {
	var acc memtrace.Class

	for _, in := range seq {
		bid, i, ok := fn.Locate(in.ID)
		if !ok {
			return "", fmt.Errorf("instruction #%d is not placed", in.ID)
		}

		_, cls, err := c.ClassifyAt(fn.Blocks[bid], i)
		if err != nil {
			return "", err
		}

		if cls.Sentinel() {
			return "", fmt.Errorf("%s: %q: %w", fn.Format(in), cls, memtrace.ErrUnexpectedLatency)
		}

		if acc == "" {
			acc = cls
			continue
		}

		if acc, err = memtrace.Concat(acc, cls); err != nil {
			return "", err
		}
	}

	return acc, nil
}

// firstDifference returns the first cycle, counting from 1, in which
// two traces differ. It returns 0 when they are equal.
func firstDifference(a, b memtrace.Class) int {
	ta, errA := memtrace.Parse(a)
	tb, errB := memtrace.Parse(b)

	if errA != nil || errB != nil {
		if a == b {
			return 0
		}

		return 1
	}

	n := min(ta.Cycles, tb.Cycles)
	for i := range n {
		if ta.Peripheral[i] != tb.Peripheral[i] ||
			ta.Data[i] != tb.Data[i] ||
			ta.Program[i] != tb.Program[i] {
			return i + 1
		}
	}

	if ta.Cycles != tb.Cycles {
		return n + 1
	}

	return 0
}
