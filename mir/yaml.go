package mir

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/sllvm-defend/msp430"
)

type moduleYAML struct {
	Functions []functionYAML `yaml:"functions"`
}

type functionYAML struct {
	Name       string         `yaml:"name"`
	Secrets    []string       `yaml:"secrets,omitempty"`
	LoopBounds map[string]int `yaml:"loop_bounds,omitempty"`
	Blocks     []blockYAML    `yaml:"blocks"`
}

type blockYAML struct {
	Name   string   `yaml:"name"`
	Succs  []string `yaml:"succs,omitempty"`
	Instrs []string `yaml:"instrs"`
}

// LoadFile reads the functions of a YAML module file.
func LoadFile(path string) ([]*Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fns, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return fns, nil
}

// Parse reads functions from YAML:
//
//	functions:
//	  - name: check
//	    secrets: [r12]
//	    blocks:
//	      - name: entry
//	        instrs: ["cmp #0, r12", "jeq done"]
//	      - name: done
//	        instrs: ["ret"]
//
// Successors follow from the terminators and the block order. A block
// ending in an indirect branch lists its successors under succs.
func Parse(data []byte) ([]*Function, error) {
	var m moduleYAML
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	fns := make([]*Function, 0, len(m.Functions))

	for _, fy := range m.Functions {
		fn, err := fy.build()
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fy.Name, err)
		}

		fns = append(fns, fn)
	}

	return fns, nil
}

func (fy functionYAML) build() (*Function, error) {
	fn := NewFunction(fy.Name)

	for _, by := range fy.Blocks {
		if fn.BlockByName(by.Name) != nil {
			return nil, fmt.Errorf("duplicate block %q", by.Name)
		}

		fn.AddBlock(by.Name)
	}

	for k, v := range fy.LoopBounds {
		fn.LoopBounds[k] = v
	}

	for _, s := range fy.Secrets {
		if r, ok := msp430.ParseReg(s); ok {
			fn.Secrets.Regs = append(fn.Secrets.Regs, r)
			continue
		}

		fn.Secrets.Mem = append(fn.Secrets.Mem, NormalizeMemKey(s))
	}

	for i, by := range fy.Blocks {
		b := fn.Blocks[i]

		for _, text := range by.Instrs {
			in, err := fn.ParseInstr(text)
			if err != nil {
				return nil, fmt.Errorf("block %s: %w", by.Name, err)
			}

			b.Append(in)
		}
	}

	fn.RecomputeSuccs()

	for i, by := range fy.Blocks {
		if len(by.Succs) == 0 {
			continue
		}

		b := fn.Blocks[i]
		b.Succs = nil

		for _, name := range by.Succs {
			s := fn.BlockByName(name)
			if s == nil {
				return nil, fmt.Errorf("block %s: unknown successor %q", by.Name, name)
			}

			fn.AddEdge(b.ID, s.ID)
		}
	}

	return fn, nil
}

// NormalizeMemKey turns "&0x200", "0x0200" and "512" into the key
// Operand.MemKey reports for that address. Names are kept as they are.
func NormalizeMemKey(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "&")

	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		return AddrKey(uint16(n))
	}

	return s
}

// Marshal writes functions back in the format Parse reads.
func Marshal(fns []*Function) ([]byte, error) {
	m := moduleYAML{}

	for _, fn := range fns {
		fy := functionYAML{
			Name:       fn.Name,
			LoopBounds: fn.LoopBounds,
		}

		for _, r := range fn.Secrets.Regs {
			fy.Secrets = append(fy.Secrets, r.String())
		}

		fy.Secrets = append(fy.Secrets, fn.Secrets.Mem...)

		for _, bid := range fn.Layout {
			b := fn.Blocks[bid]
			by := blockYAML{Name: b.Name, Instrs: []string{}}

			for _, in := range b.Instrs {
				by.Instrs = append(by.Instrs, fn.Format(in))
			}

			if term := b.Terminators(); len(term) > 0 && term[len(term)-1].IsIndirectBranch() {
				for _, s := range b.Succs {
					by.Succs = append(by.Succs, fn.BlockName(s))
				}
			}

			fy.Blocks = append(fy.Blocks, by)
		}

		m.Functions = append(m.Functions, fy)
	}

	return yaml.Marshal(&m)
}
