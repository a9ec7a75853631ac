package runtime

import (
	"fmt"
	"sort"

	"github.com/xirelogy/go-lisp/internal/heap"
)

// Spec describes a builtin procedure bound to a global of the same name.
type Spec struct {
	Name string
	// Arity is the minimum argument count. MaxArity is 0 for exactly
	// Arity arguments and negative for no upper bound.
	Arity    int
	MaxArity int
	Handler  heap.BuiltinFunc
}

// Accepts reports whether argc arguments satisfy the spec.
func (s Spec) Accepts(argc int) bool {
	if argc < s.Arity {
		return false
	}
	switch {
	case s.MaxArity < 0:
		return true
	case s.MaxArity == 0:
		return argc == s.Arity
	default:
		return argc <= s.MaxArity
	}
}

var byName = map[string]Spec{}

// Register installs a builtin. Plugins call it from init.
func Register(spec Spec) {
	if spec.Handler == nil {
		panic(fmt.Sprintf("builtin %s has nil handler", spec.Name))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("builtin %s already registered", spec.Name))
	}
	byName[spec.Name] = spec
}

// All returns all registered builtins ordered by name.
func All() []Spec {
	out := make([]Spec, 0, len(byName))
	for _, spec := range byName {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
