package pairp

import (
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "pair?",
		Arity:   1,
		Handler: runPairP,
	})
}

func runPairP(h *heap.Heap, args []value.Value) (value.Value, error) {
	_, ok := h.AsPair(args[0])
	return value.Bool(ok), nil
}
