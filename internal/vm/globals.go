package vm

import (
	"fmt"

	"github.com/xirelogy/go-lisp/internal/value"
)

const maxGlobals = 1 << 16

// Globals maps names to slots in a dense value vector. Slots are created on
// first reference and start Uninitialized.
type Globals struct {
	index  map[string]uint16
	names  []string
	values []value.Value
}

func newGlobals() *Globals {
	return &Globals{index: make(map[string]uint16)}
}

// Index returns the slot for name, creating it when absent.
func (g *Globals) Index(name string) (uint16, error) {
	if idx, ok := g.index[name]; ok {
		return idx, nil
	}
	if len(g.names) >= maxGlobals {
		return 0, fmt.Errorf("too many global variables")
	}
	idx := uint16(len(g.names))
	g.index[name] = idx
	g.names = append(g.names, name)
	g.values = append(g.values, value.Uninitialized())
	return idx, nil
}

// Defined reports whether slot idx holds a value.
func (g *Globals) Defined(idx uint16) bool {
	return int(idx) < len(g.values) && g.values[idx].Kind != value.KindUninitialized
}

// Lookup returns the value bound to name.
func (g *Globals) Lookup(name string) (value.Value, bool) {
	idx, ok := g.index[name]
	if !ok || !g.Defined(idx) {
		return value.Value{}, false
	}
	return g.values[idx], true
}

// Define binds name to v, overwriting any previous binding.
func (g *Globals) Define(name string, v value.Value) error {
	idx, err := g.Index(name)
	if err != nil {
		return err
	}
	g.values[idx] = v
	return nil
}

// Names returns every global name in slot order.
func (g *Globals) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}
