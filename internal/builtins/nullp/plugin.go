package nullp

import (
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "null?",
		Arity:   1,
		Handler: runNullP,
	})
}

func runNullP(h *heap.Heap, args []value.Value) (value.Value, error) {
	return value.Bool(args[0].IsNil()), nil
}
