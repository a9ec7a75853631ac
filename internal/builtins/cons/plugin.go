package cons

import (
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

// The compiler inlines (cons a b); this binding serves cons used as a value.
func init() {
	runtime.Register(runtime.Spec{
		Name:    "cons",
		Arity:   2,
		Handler: runCons,
	})
}

func runCons(h *heap.Heap, args []value.Value) (value.Value, error) {
	return h.NewPair(args[0], args[1]), nil
}
