package list

import (
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:     "list",
		Arity:    0,
		MaxArity: -1,
		Handler:  runList,
	})
}

func runList(h *heap.Heap, args []value.Value) (value.Value, error) {
	return h.List(args), nil
}
