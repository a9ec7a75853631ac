package car

import (
	"fmt"

	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "car",
		Arity:   1,
		Handler: runCar,
	})
}

func runCar(h *heap.Heap, args []value.Value) (value.Value, error) {
	p, ok := h.AsPair(args[0])
	if !ok {
		return value.Undefined(), fmt.Errorf("car: expected pair, got %s", h.TypeOf(args[0]))
	}
	return p.Car, nil
}
