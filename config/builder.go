package config

import (
	"slices"

	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/msp430"
)

// Builder creates configurations.
type Builder struct {
	c Config
}

// NewBuilder starts from the default configuration.
func NewBuilder() Builder {
	return Builder{c: Default()}
}

// WithMemoryMap sets the memory map.
func (b Builder) WithMemoryMap(mm msp430.MemoryMap) Builder {
	b.c.MemoryMap = mm
	return b
}

// WithScratch sets the scratch words dummies access.
func (b Builder) WithScratch(s memtrace.Scratch) Builder {
	b.c.Scratch = &s
	return b
}

// WithConservativeRegion sets the region assumed for unresolved pointers.
func (b Builder) WithConservativeRegion(r msp430.Region) Builder {
	b.c.Conservative = r
	return b
}

// WithSecretRegs sets the registers holding secrets on entry.
func (b Builder) WithSecretRegs(regs ...msp430.Reg) Builder {
	b.c.SecretRegs = make([]string, len(regs))
	for i, r := range regs {
		b.c.SecretRegs[i] = r.String()
	}

	return b
}

// WithMaxTripCount bounds loop counter simulation.
func (b Builder) WithMaxTripCount(n int) Builder {
	b.c.MaxTripCount = n
	return b
}

// WithUniformPolicy makes the DMA pass pad every instruction to cls.
func (b Builder) WithUniformPolicy(cls memtrace.Class) Builder {
	b.c.Policy = Policy{Kind: PolicyUniform, Class: cls}
	return b
}

// WithPasses sets the passes to run, in order.
func (b Builder) WithPasses(ids ...string) Builder {
	b.c.Passes = slices.Clone(ids)
	return b
}

// WithWorkers sets how many functions are hardened at once.
func (b Builder) WithWorkers(n int) Builder {
	b.c.Workers = n
	return b
}

// Build validates and returns the configuration.
func (b Builder) Build() (Config, error) {
	c := b.c
	c.SecretRegs = slices.Clone(c.SecretRegs)
	c.Passes = slices.Clone(c.Passes)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}
