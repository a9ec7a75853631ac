package add

import (
	"fmt"

	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "+",
		Arity:   2,
		Handler: runAdd,
	})
}

func runAdd(h *heap.Heap, args []value.Value) (value.Value, error) {
	a, b := args[0], args[1]
	if !a.IsNumber() || !b.IsNumber() {
		return value.Undefined(), fmt.Errorf("+: expected numeric operand")
	}
	return value.Number(a.Num + b.Num), nil
}
