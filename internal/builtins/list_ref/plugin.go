package list_ref

import (
	"fmt"
	"math"

	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

// (list-ref list k [default]) returns element k, or default when the list
// is too short.
func init() {
	runtime.Register(runtime.Spec{
		Name:     "list-ref",
		Arity:    2,
		MaxArity: 3,
		Handler:  runListRef,
	})
}

func runListRef(h *heap.Heap, args []value.Value) (value.Value, error) {
	k := args[1]
	if !k.IsNumber() || k.Num < 0 || k.Num != math.Trunc(k.Num) {
		return value.Undefined(), fmt.Errorf("list-ref: expected non-negative integer index")
	}
	rest := args[0]
	for i := 0; ; i++ {
		p, ok := h.AsPair(rest)
		if !ok {
			break
		}
		if float64(i) == k.Num {
			return p.Car, nil
		}
		rest = p.Cdr
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return value.Undefined(), fmt.Errorf("list-ref: index %s out of range", heap.FormatNumber(k.Num))
}
