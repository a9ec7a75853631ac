package typeof

import (
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "type-of",
		Arity:   1,
		Handler: runTypeof,
	})
}

func runTypeof(h *heap.Heap, args []value.Value) (value.Value, error) {
	return h.NewString(h.TypeOf(args[0])), nil
}
