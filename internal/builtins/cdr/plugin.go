package cdr

import (
	"fmt"

	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "cdr",
		Arity:   1,
		Handler: runCdr,
	})
}

func runCdr(h *heap.Heap, args []value.Value) (value.Value, error) {
	p, ok := h.AsPair(args[0])
	if !ok {
		return value.Undefined(), fmt.Errorf("cdr: expected pair, got %s", h.TypeOf(args[0]))
	}
	return p.Cdr, nil
}
