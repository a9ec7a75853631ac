package vm

import (
	"fmt"
	"io"
	"sort"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/value"
)

// Disassemble emits assembly-style bytecode output for every global bound
// to a compiled procedure.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	names := vm.globals.Names()
	sort.Strings(names)
	dis := bytecode.NewDisassembler(w, vm.heap)
	for _, name := range names {
		v, ok := vm.globals.Lookup(name)
		if !ok {
			continue
		}
		cl, ok := vm.heap.AsClosure(v)
		if !ok {
			continue
		}
		if err := DisassembleFunction(dis, vm.heap, name, cl.Function); err != nil {
			return err
		}
	}
	return nil
}

// DisassembleFunction dumps the template fn and its nested functions.
func DisassembleFunction(dis *bytecode.Disassembler, h *heap.Heap, label string, fn value.Ref) error {
	info, ok := h.FunctionInfo(value.Object(fn))
	if !ok {
		return fmt.Errorf("%s is not a function", fn)
	}
	return dis.DisassembleFunction(label, info)
}
