package memtrace

import (
	"errors"
	"fmt"

	"github.com/sarchlab/sllvm-defend/msp430"
)

// Errors returned by the classifier.
var (
	ErrUnsupportedRegionPair = errors.New("unsupported region pair")
	ErrUnexpectedLatency     = errors.New("trace class is not a known class")
)

// Pair is the regions an instruction's source and destination reference.
// Register and immediate operands count as data.
type Pair struct {
	Src msp430.Region
	Dst msp430.Region
}

// Pairs are the region pairs with a table column, in column order.
// Writing to program memory is not modeled.
var Pairs = []Pair{
	{msp430.RegionData, msp430.RegionData},
	{msp430.RegionProgram, msp430.RegionData},
	{msp430.RegionPeripheral, msp430.RegionData},
	{msp430.RegionData, msp430.RegionPeripheral},
	{msp430.RegionProgram, msp430.RegionPeripheral},
	{msp430.RegionPeripheral, msp430.RegionPeripheral},
}

// Index returns the table column of the pair.
func (p Pair) Index() (int, error) {
	for i, q := range Pairs {
		if q == p {
			return i, nil
		}
	}

	return -1, fmt.Errorf("%s: %w", p, ErrUnsupportedRegionPair)
}

// Normalized maps peripheral accesses to data accesses.
func (p Pair) Normalized() Pair {
	if p.Src == msp430.RegionPeripheral {
		p.Src = msp430.RegionData
	}

	if p.Dst == msp430.RegionPeripheral {
		p.Dst = msp430.RegionData
	}

	return p
}

func (p Pair) String() string {
	return p.Src.Short() + p.Dst.Short()
}
