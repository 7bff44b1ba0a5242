// Package pipeline registers the hardening passes and runs them over
// functions, reporting diagnostics and hook events.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/sarchlab/sllvm-defend/config"
	"github.com/sarchlab/sllvm-defend/dma"
	"github.com/sarchlab/sllvm-defend/memtrace"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/nemesis"
)

// Registry errors.
var (
	ErrDuplicatePass = errors.New("pass already registered")
	ErrUnknownPass   = errors.New("unknown pass")
)

// Pass transforms one function at a time.
type Pass interface {
	Name() string
	ID() string
	// Preserved lists the analyses still valid after the pass ran.
	Preserved() []string
	Run(fn *mir.Function) error
}

// Env is what factories build passes from.
type Env struct {
	Config     config.Config
	Classifier *memtrace.Classifier
	Catalogue  *memtrace.Catalogue
	// Dump receives per-function analysis tables when set.
	Dump io.Writer
}

// NewEnv derives the classifier and dummy catalogue from a
// configuration.
func NewEnv(c config.Config) (*Env, error) {
	cl := c.Classifier()

	cat, err := memtrace.NewCatalogue(cl, c.ScratchLocations())
	if err != nil {
		return nil, err
	}

	return &Env{Config: c, Classifier: cl, Catalogue: cat}, nil
}

// Factory creates a pass.
type Factory func(env *Env) (Pass, error)

type entry struct {
	name    string
	id      string
	factory Factory
}

// Registry maps pass ids to factories.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Builtins returns a registry holding the branch balancing and trace
// normalization passes.
func Builtins() *Registry {
	r := NewRegistry()

	r.MustRegister(nemesis.Name, nemesis.ID, NewNemesis)
	r.MustRegister(dma.Name, dma.ID, NewDMA)

	return r
}

// Register adds a factory under id.
func (r *Registry) Register(name, id string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.entries, func(e entry) bool { return e.id == id }) {
		return fmt.Errorf("%s: %w", id, ErrDuplicatePass)
	}

	r.entries = append(r.entries, entry{name: name, id: id, factory: f})

	return nil
}

// MustRegister is Register, panicking on duplicates.
func (r *Registry) MustRegister(name, id string, f Factory) {
	if err := r.Register(name, id, f); err != nil {
		panic(err)
	}
}

// IDs lists the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}

	return ids
}

// Build creates the passes with the given ids, in order.
func (r *Registry) Build(env *Env, ids []string) ([]Pass, error) {
	r.mu.Lock()
	entries := slices.Clone(r.entries)
	r.mu.Unlock()

	passes := make([]Pass, 0, len(ids))

	for _, id := range ids {
		i := slices.IndexFunc(entries, func(e entry) bool { return e.id == id })
		if i < 0 {
			return nil, fmt.Errorf("%q: %w", id, ErrUnknownPass)
		}

		p, err := entries[i].factory(env)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", entries[i].name, err)
		}

		passes = append(passes, p)
	}

	return passes, nil
}

var defaultRegistry = Builtins()

// Register adds a factory to the default registry.
func Register(name, id string, f Factory) error {
	return defaultRegistry.Register(name, id, f)
}

// Default returns the default registry.
func Default() *Registry {
	return defaultRegistry
}

// NewNemesis creates the branch balancing pass.
func NewNemesis(env *Env) (Pass, error) {
	regs, err := env.Config.Registers()
	if err != nil {
		return nil, err
	}

	return nemesis.New(nemesis.Options{
		Classifier:   env.Classifier,
		Catalogue:    env.Catalogue,
		SecretRegs:   regs,
		MaxTripCount: env.Config.MaxTripCount,
		Dump:         env.Dump,
	})
}

// NewDMA creates the trace normalization pass with the configured
// policy.
func NewDMA(env *Env) (Pass, error) {
	var policy dma.Policy = dma.ShadowPolicy{Classifier: env.Classifier}

	if env.Config.Policy.Kind == config.PolicyUniform {
		policy = dma.UniformPolicy{Class: env.Config.Policy.Class, Classifier: env.Classifier}
	}

	return dma.New(dma.Options{
		Classifier: env.Classifier,
		Catalogue:  env.Catalogue,
		Policy:     policy,
	})
}
