// Package config holds the settings of a hardening run: the memory map
// of the target, where dummy instructions may write, which registers
// carry secrets and which passes run.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Policy kinds.
const (
	PolicyShadow  = "shadow"
	PolicyUniform = "uniform"
)

// Policy selects how the DMA pass decides the class an instruction needs.
type Policy struct {
	Kind  string         `yaml:"kind"`
	Class memtrace.Class `yaml:"class,omitempty"`
}

// Config is the full configuration.
type Config struct {
	MemoryMap    msp430.MemoryMap  `yaml:"memory_map"`
	Scratch      *memtrace.Scratch `yaml:"scratch,omitempty"`
	Conservative msp430.Region     `yaml:"conservative_region"`
	SecretRegs   []string          `yaml:"secret_regs"`
	MaxTripCount int               `yaml:"max_trip_count"`
	Policy       Policy            `yaml:"policy"`
	Passes       []string          `yaml:"passes"`
	Workers      int               `yaml:"workers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		MemoryMap:    msp430.DefaultMemoryMap(),
		Conservative: msp430.RegionData,
		SecretRegs:   []string{"r12", "r13", "r14", "r15"},
		MaxTripCount: 1024,
		Policy:       Policy{Kind: PolicyShadow},
		Passes:       []string{"nemesis", "dma"},
		Workers:      1,
	}
}

// Load reads a YAML file. Keys the file leaves out keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	c := Default()

	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ScratchLocations returns the configured scratch words, or the defaults
// for the memory map.
func (c Config) ScratchLocations() memtrace.Scratch {
	if c.Scratch != nil {
		return *c.Scratch
	}

	return memtrace.DefaultScratch(c.MemoryMap)
}

// Registers parses the secret registers.
func (c Config) Registers() ([]msp430.Reg, error) {
	regs := make([]msp430.Reg, 0, len(c.SecretRegs))

	for _, s := range c.SecretRegs {
		r, ok := msp430.ParseReg(s)
		if !ok {
			return nil, fmt.Errorf("secret register %q: %w", s, ErrInvalid)
		}

		regs = append(regs, r)
	}

	return regs, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if err := c.MemoryMap.Validate(); err != nil {
		return fmt.Errorf("memory map: %v: %w", err, ErrInvalid)
	}

	if err := c.ScratchLocations().Validate(c.MemoryMap); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	if _, err := c.Registers(); err != nil {
		return err
	}

	if c.MaxTripCount <= 0 {
		return fmt.Errorf("max_trip_count must be positive, got %d: %w", c.MaxTripCount, ErrInvalid)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d: %w", c.Workers, ErrInvalid)
	}

	switch c.Policy.Kind {
	case PolicyShadow:
	case PolicyUniform:
		if _, ok := memtrace.CodeOf(c.Policy.Class); !ok || c.Policy.Class.Sentinel() {
			return fmt.Errorf("uniform policy class %q is not a known trace class: %w", c.Policy.Class, ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown policy %q: %w", c.Policy.Kind, ErrInvalid)
	}

	for i, p := range c.Passes {
		if slices.Contains(c.Passes[:i], p) {
			return fmt.Errorf("pass %q listed twice: %w", p, ErrInvalid)
		}
	}

	return nil
}

// Table generates the trace table for the memory map.
func (c Config) Table() *memtrace.Table {
	if c.MemoryMap == msp430.DefaultMemoryMap() {
		return memtrace.DefaultTable()
	}

	return memtrace.Generate(c.MemoryMap)
}

// Classifier builds a classifier over the table of the memory map.
func (c Config) Classifier() *memtrace.Classifier {
	t := c.Table()

	return memtrace.NewClassifier(t, memtrace.Resolver{
		Map:          c.MemoryMap,
		Conservative: c.Conservative,
	})
}
