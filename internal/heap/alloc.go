package heap

import (
	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/value"
)

func (h *Heap) NewPair(car, cdr value.Value) value.Value {
	return value.Object(h.Alloc(&Pair{Car: car, Cdr: cdr}))
}

func (h *Heap) NewString(s string) value.Value {
	return value.Object(h.Alloc(&String{Value: s}))
}

// NewFunction allocates an empty function template whose chunk starts at
// baseLine.
func (h *Heap) NewFunction(name, source string, baseLine int) (value.Ref, *Function) {
	fn := &Function{
		Name:   name,
		Source: source,
		Chunk:  bytecode.NewChunk(baseLine),
	}
	return h.Alloc(fn), fn
}

// NewClosure allocates a closure over fn with room for its upvalues.
func (h *Heap) NewClosure(fn value.Ref) (value.Ref, *Closure) {
	f := h.Get(fn).(*Function)
	cl := &Closure{Function: fn, Upvalues: make([]value.Ref, f.UpvalueCount)}
	return h.Alloc(cl), cl
}

// NewUpvalue allocates an open cell for stack slot.
func (h *Heap) NewUpvalue(slot int) value.Ref {
	return h.Alloc(&Upvalue{Slot: slot})
}

func (h *Heap) NewBuiltin(name string, check func(int) bool, impl BuiltinFunc) value.Value {
	return value.Object(h.Alloc(&Builtin{Name: name, Check: check, Impl: impl}))
}

// List builds a proper list from items.
func (h *Heap) List(items []value.Value) value.Value {
	for _, it := range items {
		h.PushTemp(it)
	}
	out := value.Nil()
	for i := len(items) - 1; i >= 0; i-- {
		h.PushTemp(out)
		out = h.NewPair(items[i], out)
		h.PopTemps(1)
	}
	h.PopTemps(len(items))
	return out
}

func (h *Heap) object(v value.Value) Object {
	if v.Kind != value.KindObject {
		return nil
	}
	return h.Get(v.Ref)
}

func (h *Heap) AsPair(v value.Value) (*Pair, bool) {
	p, ok := h.object(v).(*Pair)
	return p, ok
}

func (h *Heap) AsString(v value.Value) (*String, bool) {
	s, ok := h.object(v).(*String)
	return s, ok
}

func (h *Heap) AsFunction(v value.Value) (*Function, bool) {
	f, ok := h.object(v).(*Function)
	return f, ok
}

func (h *Heap) AsClosure(v value.Value) (*Closure, bool) {
	c, ok := h.object(v).(*Closure)
	return c, ok
}

func (h *Heap) AsBuiltin(v value.Value) (*Builtin, bool) {
	b, ok := h.object(v).(*Builtin)
	return b, ok
}

// Upvalue resolves a cell handle.
func (h *Heap) Upvalue(ref value.Ref) *Upvalue {
	return h.Get(ref).(*Upvalue)
}

// Function resolves a function template handle.
func (h *Heap) Function(ref value.Ref) *Function {
	return h.Get(ref).(*Function)
}

// TypeOf names the dynamic type of v.
func (h *Heap) TypeOf(v value.Value) string {
	if v.Kind != value.KindObject {
		return v.Kind.String()
	}
	return TypeName(h.Get(v.Ref))
}
