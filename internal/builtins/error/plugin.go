package errorbuiltin

import (
	"errors"
	"strings"

	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

// (error message irritant...) aborts evaluation with a runtime error.
func init() {
	runtime.Register(runtime.Spec{
		Name:     "error",
		Arity:    1,
		MaxArity: -1,
		Handler:  runError,
	})
}

func runError(h *heap.Heap, args []value.Value) (value.Value, error) {
	parts := make([]string, 0, len(args))
	for i, a := range args {
		if s, ok := h.AsString(a); ok && i == 0 {
			parts = append(parts, s.Value)
			continue
		}
		parts = append(parts, h.Format(a))
	}
	return value.Undefined(), errors.New(strings.Join(parts, " "))
}
