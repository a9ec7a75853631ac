package heap

import (
	"math"
	"strconv"
	"strings"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/value"
)

// FormatNumber renders n in its shortest form, without an exponent for
// integral values of moderate size.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Format renders v the way the REPL prints results.
func (h *Heap) Format(v value.Value) string {
	var sb strings.Builder
	h.write(&sb, v)
	return sb.String()
}

func (h *Heap) write(sb *strings.Builder, v value.Value) {
	switch v.Kind {
	case value.KindNil:
		sb.WriteString("nil")
	case value.KindBool:
		if v.B {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case value.KindNumber:
		sb.WriteString(FormatNumber(v.Num))
	case value.KindUninitialized:
		sb.WriteString("#<uninitialized>")
	case value.KindUndefined:
		sb.WriteString("#<undefined>")
	case value.KindObject:
		h.writeObject(sb, v)
	}
}

func (h *Heap) writeObject(sb *strings.Builder, v value.Value) {
	switch o := h.Get(v.Ref).(type) {
	case *Pair:
		sb.WriteByte('(')
		h.write(sb, o.Car)
		rest := o.Cdr
		for {
			next, ok := h.AsPair(rest)
			if !ok {
				break
			}
			sb.WriteByte(' ')
			h.write(sb, next.Car)
			rest = next.Cdr
		}
		if !rest.IsNil() {
			sb.WriteString(" . ")
			h.write(sb, rest)
		}
		sb.WriteByte(')')
	case *String:
		sb.WriteString(strconv.Quote(o.Value))
	case *Closure:
		sb.WriteString("#<procedure ")
		sb.WriteString(h.Function(o.Function).DisplayName())
		sb.WriteByte('>')
	case *Function:
		sb.WriteString("#<function ")
		sb.WriteString(o.DisplayName())
		sb.WriteByte('>')
	case *Builtin:
		sb.WriteString("#<builtin ")
		sb.WriteString(o.Name)
		sb.WriteByte('>')
	case *Upvalue:
		sb.WriteString("#<upvalue>")
	}
}

// Describe renders a constant for the disassembler.
func (h *Heap) Describe(v value.Value) string {
	if f, ok := h.AsFunction(v); ok {
		return "<fn " + f.DisplayName() + ">"
	}
	return h.Format(v)
}

// FunctionInfo exposes a function constant to the disassembler.
func (h *Heap) FunctionInfo(v value.Value) (bytecode.FunctionInfo, bool) {
	f, ok := h.AsFunction(v)
	if !ok {
		return bytecode.FunctionInfo{}, false
	}
	return bytecode.FunctionInfo{
		Name:     f.DisplayName(),
		Arity:    f.Arity,
		Upvalues: f.UpvalueCount,
		Chunk:    f.Chunk,
	}, true
}
