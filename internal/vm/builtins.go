package vm

import (
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

// installBuiltins binds every registered builtin to a global of its name.
func (vm *VM) installBuiltins() {
	for _, spec := range runtime.All() {
		if err := vm.DefineBuiltin(spec); err != nil {
			panic(err)
		}
	}
}

// DefineBuiltin binds a host procedure to a global.
func (vm *VM) DefineBuiltin(spec runtime.Spec) error {
	b := vm.heap.NewBuiltin(spec.Name, spec.Accepts, spec.Handler)
	return vm.globals.Define(spec.Name, b)
}

// Global returns the value bound to name.
func (vm *VM) Global(name string) (value.Value, bool) {
	return vm.globals.Lookup(name)
}
