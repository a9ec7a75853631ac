package value

import "fmt"

type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	// KindUninitialized marks a global that has a slot but no value yet.
	KindUninitialized
	// KindUndefined is returned from invalid constructions.
	KindUndefined
	KindObject
)

// Ref is a handle to a heap object. Gen distinguishes successive
// occupants of the same arena slot.
type Ref struct {
	Index uint32
	Gen   uint32
}

func (r Ref) String() string {
	return fmt.Sprintf("#%d.%d", r.Index, r.Gen)
}

// Value is the runtime representation of every Lisp datum. Immediate kinds
// are stored inline; everything else lives in the heap behind Ref.
type Value struct {
	Kind Kind
	Num  float64
	B    bool
	Ref  Ref
}

func Nil() Value { return Value{Kind: KindNil} }
func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}
func Uninitialized() Value { return Value{Kind: KindUninitialized} }
func Undefined() Value     { return Value{Kind: KindUndefined} }
func Object(r Ref) Value {
	return Value{Kind: KindObject, Ref: r}
}

// IsFalse reports whether v is the boolean false. It is the only falsy
// value; nil is truthy.
func (v Value) IsFalse() bool {
	return v.Kind == KindBool && !v.B
}

func Truthy(v Value) bool {
	return !v.IsFalse()
}

func (v Value) IsObject() bool { return v.Kind == KindObject }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsNil() bool    { return v.Kind == KindNil }

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindUninitialized:
		return "uninitialized"
	case KindUndefined:
		return "undefined"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}
