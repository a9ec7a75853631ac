package lisp

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/value"
)

// ErrStale is returned when a Value's object has been collected.
var ErrStale = errors.New("value has been collected")

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValuePair
	ValueProcedure
	ValueBuiltin
	ValueUndefined
)

func (k ValueKind) String() string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "bool"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValuePair:
		return "pair"
	case ValueProcedure:
		return "procedure"
	case ValueBuiltin:
		return "builtin"
	default:
		return "undefined"
	}
}

// Value is a result handed out by an Interpreter, or an immediate built
// with Nil, Bool or Number.
//
// Values are not garbage collection roots. Once the owning interpreter
// collects, an object no longer referenced from a global goes stale and
// its accessors report ErrStale. Bind it with Define to keep it.
type Value struct {
	v     value.Value
	owner *Interpreter
}

func Nil() Value             { return Value{v: value.Nil()} }
func Bool(b bool) Value      { return Value{v: value.Bool(b)} }
func Number(n float64) Value { return Value{v: value.Number(n)} }

func (v Value) live() bool {
	if !v.v.IsObject() {
		return true
	}
	return v.owner != nil && v.owner.heap.Valid(v.v.Ref)
}

// Kind classifies v. Stale objects report ValueUndefined.
func (v Value) Kind() ValueKind {
	switch v.v.Kind {
	case value.KindNil:
		return ValueNil
	case value.KindBool:
		return ValueBool
	case value.KindNumber:
		return ValueNumber
	case value.KindObject:
		if !v.live() {
			return ValueUndefined
		}
		switch v.owner.heap.Get(v.v.Ref).(type) {
		case *heap.String:
			return ValueString
		case *heap.Pair:
			return ValuePair
		case *heap.Closure:
			return ValueProcedure
		case *heap.Builtin:
			return ValueBuiltin
		}
	}
	return ValueUndefined
}

// String renders v the way the REPL prints it.
func (v Value) String() string {
	if !v.v.IsObject() {
		return formatImmediate(v.v)
	}
	if !v.live() {
		return "#<stale>"
	}
	return v.owner.heap.Format(v.v)
}

func formatImmediate(v value.Value) string {
	switch v.Kind {
	case value.KindNil:
		return "nil"
	case value.KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case value.KindNumber:
		return heap.FormatNumber(v.Num)
	case value.KindUninitialized:
		return "#<uninitialized>"
	default:
		return "#<undefined>"
	}
}

func (v Value) IsNil() bool {
	return v.v.Kind == value.KindNil
}

func (v Value) Number() (float64, bool) {
	if v.v.Kind != value.KindNumber {
		return 0, false
	}
	return v.v.Num, true
}

func (v Value) Bool() (bool, bool) {
	if v.v.Kind != value.KindBool {
		return false, false
	}
	return v.v.B, true
}

// Text returns the contents of a string value.
func (v Value) Text() (string, bool) {
	if !v.v.IsObject() || !v.live() {
		return "", false
	}
	s, ok := v.owner.heap.AsString(v.v)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// Raw converts v to a plain Go value: nil, bool, float64, string, or []any
// for proper lists.
func (v Value) Raw() (any, error) {
	if !v.live() {
		return nil, ErrStale
	}
	var h *heap.Heap
	if v.owner != nil {
		h = v.owner.heap
	}
	return unmarshalToGo(h, v.v)
}

// MustRaw is like Raw but panics on error.
func (v Value) MustRaw() any {
	out, err := v.Raw()
	if err != nil {
		panic(err)
	}
	return out
}

func unmarshalToGo(h *heap.Heap, v value.Value) (any, error) {
	switch v.Kind {
	case value.KindNil:
		return nil, nil
	case value.KindBool:
		return v.B, nil
	case value.KindNumber:
		return v.Num, nil
	case value.KindObject:
	default:
		return nil, fmt.Errorf("cannot convert %s", formatImmediate(v))
	}
	switch o := h.Get(v.Ref).(type) {
	case *heap.String:
		return o.Value, nil
	case *heap.Pair:
		out := []any{}
		cur := v
		for cur.IsObject() {
			p, ok := h.AsPair(cur)
			if !ok {
				break
			}
			item, err := unmarshalToGo(h, p.Car)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
			cur = p.Cdr
		}
		if !cur.IsNil() {
			return nil, fmt.Errorf("cannot convert improper list %s", h.Format(v))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert %s", h.Format(v))
	}
}

// NewValue converts a Go value into one owned by in. Supported inputs are
// nil, bool, integer and float kinds, string, slices and arrays (as proper
// lists) and Values already owned by in.
func (in *Interpreter) NewValue(val any) (Value, error) {
	v, err := in.marshalGoValue(reflect.ValueOf(val))
	if err != nil {
		return Value{}, err
	}
	return Value{v: v, owner: in}, nil
}

// MustValue is like NewValue but panics on error.
func (in *Interpreter) MustValue(val any) Value {
	v, err := in.NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

var valueType = reflect.TypeOf(Value{})

func (in *Interpreter) marshalGoValue(rv reflect.Value) (value.Value, error) {
	if !rv.IsValid() {
		return value.Nil(), nil
	}
	if rv.Type() == valueType {
		return in.adopt(rv.Interface().(Value))
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return value.Nil(), nil
		}
		return in.marshalGoValue(rv.Elem())
	case reflect.Bool:
		return value.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return value.Number(rv.Float()), nil
	case reflect.String:
		return in.heap.NewString(rv.String()), nil
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		items := make([]value.Value, 0, n)
		defer func() { in.heap.PopTemps(len(items)) }()
		for i := 0; i < n; i++ {
			item, err := in.marshalGoValue(rv.Index(i))
			if err != nil {
				return value.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			in.heap.PushTemp(item)
			items = append(items, item)
		}
		return in.heap.List(items), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported type %s", rv.Type())
	}
}

// adopt checks that v may be handed to in's VM.
func (in *Interpreter) adopt(v Value) (value.Value, error) {
	if !v.v.IsObject() {
		return v.v, nil
	}
	if v.owner != in {
		return value.Value{}, errors.New("value belongs to another interpreter")
	}
	if !v.live() {
		return value.Value{}, ErrStale
	}
	return v.v, nil
}

func (in *Interpreter) adoptAll(args []Value) ([]value.Value, error) {
	out := make([]value.Value, len(args))
	for i, a := range args {
		v, err := in.adopt(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
