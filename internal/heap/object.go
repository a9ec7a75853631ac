package heap

import (
	"fmt"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/value"
)

// Object is implemented by every heap-resident variant. The set is closed:
// only types in this package satisfy it.
type Object interface {
	heapObject()
	size() int
}

type Pair struct {
	Car value.Value
	Cdr value.Value
}

// Function is a compiled lambda template shared by all closures over it.
type Function struct {
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
	Name         string
	Source       string
}

// DisplayName returns the name used in traces and printed procedures.
func (f *Function) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	line := 0
	if f.Chunk != nil {
		line = f.Chunk.BaseLine
	}
	return fmt.Sprintf("<lambda@line %d>", line)
}

type Closure struct {
	Function value.Ref
	Upvalues []value.Ref
}

// BuiltinFunc implements a native procedure. args aliases the VM stack and
// must not be retained.
type BuiltinFunc func(h *Heap, args []value.Value) (value.Value, error)

type Builtin struct {
	Name  string
	Check func(argc int) bool
	Impl  BuiltinFunc
}

// Upvalue is a captured variable cell. While open the variable lives on the
// operand stack at Slot; once closed it lives in Value.
type Upvalue struct {
	Slot   int
	Closed bool
	Value  value.Value
}

type String struct {
	Value string
}

func (*Pair) heapObject()     {}
func (*Function) heapObject() {}
func (*Closure) heapObject()  {}
func (*Builtin) heapObject()  {}
func (*Upvalue) heapObject()  {}
func (*String) heapObject()   {}

func (*Pair) size() int { return 48 }
func (f *Function) size() int {
	n := 96 + len(f.Name) + len(f.Source)
	if f.Chunk != nil {
		n += len(f.Chunk.Code)*2 + len(f.Chunk.Constants)*32 + len(f.Chunk.Lines)*16
	}
	return n
}
func (c *Closure) size() int { return 40 + 8*len(c.Upvalues) }
func (*Builtin) size() int   { return 64 }
func (*Upvalue) size() int   { return 48 }
func (s *String) size() int  { return 32 + len(s.Value) }

// TypeName reports the user-facing type of an object.
func TypeName(o Object) string {
	switch o.(type) {
	case *Pair:
		return "pair"
	case *Function:
		return "function"
	case *Closure:
		return "procedure"
	case *Builtin:
		return "builtin"
	case *Upvalue:
		return "upvalue"
	case *String:
		return "string"
	default:
		return "object"
	}
}
