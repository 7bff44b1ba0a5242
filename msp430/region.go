package msp430

import (
	"fmt"
	"strings"
)

// Region is the memory space an address falls into.
type Region uint8

// Memory regions.
const (
	RegionUnknown Region = iota
	RegionData
	RegionProgram
	RegionPeripheral
)

// Regions lists the known regions in table order.
var Regions = []Region{RegionData, RegionProgram, RegionPeripheral}

func (r Region) String() string {
	switch r {
	case RegionData:
		return "data"
	case RegionProgram:
		return "program"
	case RegionPeripheral:
		return "peripheral"
	}

	return "unknown"
}

// Short returns the abbreviation used in region-pair names.
func (r Region) Short() string {
	switch r {
	case RegionData:
		return "d"
	case RegionProgram:
		return "p"
	case RegionPeripheral:
		return "pe"
	}

	return "?"
}

// ParseRegion accepts full and abbreviated region names.
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data", "d", "ram":
		return RegionData, nil
	case "program", "p", "prog", "code", "flash":
		return RegionProgram, nil
	case "peripheral", "pe", "periph", "io":
		return RegionPeripheral, nil
	case "unknown", "":
		return RegionUnknown, nil
	}

	return RegionUnknown, fmt.Errorf("unknown memory region %q", s)
}

// UnmarshalText lets regions appear by name in configuration files.
func (r *Region) UnmarshalText(text []byte) error {
	v, err := ParseRegion(string(text))
	if err != nil {
		return err
	}

	*r = v

	return nil
}

// MarshalText writes the region name.
func (r Region) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Range is an inclusive address range.
type Range struct {
	Start uint16 `yaml:"start"`
	End   uint16 `yaml:"end"`
}

// Contains reports whether addr is inside the range.
func (r Range) Contains(addr uint16) bool {
	return addr >= r.Start && addr <= r.End
}

// MemoryMap assigns address ranges to regions.
type MemoryMap struct {
	Peripheral Range `yaml:"peripheral"`
	Data       Range `yaml:"data"`
	Program    Range `yaml:"program"`
}

// DefaultMemoryMap is the layout of a small MSP430 with 2KB of RAM and
// 16KB of flash.
func DefaultMemoryMap() MemoryMap {
	return MemoryMap{
		Peripheral: Range{Start: 0x0000, End: 0x01FF},
		Data:       Range{Start: 0x0200, End: 0x09FF},
		Program:    Range{Start: 0xC000, End: 0xFFFF},
	}
}

// RegionOf returns the region addr falls into.
func (m MemoryMap) RegionOf(addr uint16) Region {
	switch {
	case m.Peripheral.Contains(addr):
		return RegionPeripheral
	case m.Data.Contains(addr):
		return RegionData
	case m.Program.Contains(addr):
		return RegionProgram
	}

	return RegionUnknown
}

// Range returns the address range of a region.
func (m MemoryMap) Range(r Region) (Range, bool) {
	switch r {
	case RegionData:
		return m.Data, true
	case RegionProgram:
		return m.Program, true
	case RegionPeripheral:
		return m.Peripheral, true
	}

	return Range{}, false
}

// Sample returns a word-aligned address in the middle of a region.
func (m MemoryMap) Sample(r Region) uint16 {
	rg, ok := m.Range(r)
	if !ok {
		panic(fmt.Sprintf("no address range for region %s", r))
	}

	return (rg.Start + (rg.End-rg.Start)/2) &^ 1
}

// Validate checks that the ranges are well formed and disjoint.
func (m MemoryMap) Validate() error {
	for _, r := range Regions {
		rg, _ := m.Range(r)
		if rg.Start > rg.End {
			return fmt.Errorf("%s range 0x%04x-0x%04x is empty", r, rg.Start, rg.End)
		}
	}

	for i, a := range Regions {
		for _, b := range Regions[i+1:] {
			ra, _ := m.Range(a)
			rb, _ := m.Range(b)
			if ra.Start <= rb.End && rb.Start <= ra.End {
				return fmt.Errorf("%s and %s ranges overlap", a, b)
			}
		}
	}

	return nil
}
