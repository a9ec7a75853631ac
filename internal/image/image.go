// Package image serializes compiled function graphs to CBOR so a script
// can be compiled once and run later without its source.
package image

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/value"
)

// Version is bumped whenever the opcode set or record layout changes.
const Version = 1

var ErrVersion = errors.New("image: unsupported version")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type constKind uint8

const (
	constNumber constKind = iota
	constBool
	constNil
	constString
	constFunction
)

type document struct {
	Version   int        `cbor:"1,keyasint"`
	Entry     int        `cbor:"2,keyasint"`
	Functions []function `cbor:"3,keyasint"`
	// Globals names the slot behind every global operand, in slot order.
	Globals []string `cbor:"4,keyasint,omitempty"`
}

// Linker assigns global slots in the interpreter that loads an image.
type Linker interface {
	Index(name string) (uint16, error)
}

type function struct {
	Name       string     `cbor:"1,keyasint,omitempty"`
	Source     string     `cbor:"2,keyasint,omitempty"`
	Arity      int        `cbor:"3,keyasint"`
	Upvalues   int        `cbor:"4,keyasint"`
	BaseLine   int        `cbor:"5,keyasint"`
	Code       []byte     `cbor:"6,keyasint"`
	LineStarts []bool     `cbor:"7,keyasint"`
	Lines      []line     `cbor:"8,keyasint,omitempty"`
	Constants  []constant `cbor:"9,keyasint,omitempty"`
}

type line struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
}

type constant struct {
	Kind constKind `cbor:"1,keyasint"`
	Num  float64   `cbor:"2,keyasint,omitempty"`
	Bool bool      `cbor:"3,keyasint,omitempty"`
	Str  string    `cbor:"4,keyasint,omitempty"`
	Func int       `cbor:"5,keyasint,omitempty"`
}

// Encode serializes fn and every function reachable through its constant
// pool. Function records are deduplicated by heap handle. globals lists the
// compiling interpreter's global names in slot order.
func Encode(h *heap.Heap, fn value.Ref, globals []string) ([]byte, error) {
	e := &encoder{heap: h, index: make(map[value.Ref]int)}
	entry, err := e.function(fn)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(document{
		Version:   Version,
		Entry:     entry,
		Functions: e.out,
		Globals:   globals,
	})
}

type encoder struct {
	heap  *heap.Heap
	index map[value.Ref]int
	out   []function
}

func (e *encoder) function(ref value.Ref) (int, error) {
	if idx, ok := e.index[ref]; ok {
		return idx, nil
	}
	fn, ok := e.heap.AsFunction(value.Object(ref))
	if !ok {
		return 0, fmt.Errorf("image: %s is not a function", ref)
	}
	idx := len(e.out)
	e.index[ref] = idx
	e.out = append(e.out, function{})

	chunk := fn.Chunk
	rec := function{
		Name:       fn.Name,
		Source:     fn.Source,
		Arity:      fn.Arity,
		Upvalues:   fn.UpvalueCount,
		BaseLine:   chunk.BaseLine,
		Code:       chunk.Code,
		LineStarts: chunk.LineStarts,
	}
	for _, li := range chunk.Lines {
		rec.Lines = append(rec.Lines, line{Offset: li.Offset, Line: li.Line})
	}
	for i, c := range chunk.Constants {
		out, err := e.constant(c)
		if err != nil {
			return 0, fmt.Errorf("image: %s constant %d: %w", fn.DisplayName(), i, err)
		}
		rec.Constants = append(rec.Constants, out)
	}
	e.out[idx] = rec
	return idx, nil
}

func (e *encoder) constant(v value.Value) (constant, error) {
	switch v.Kind {
	case value.KindNumber:
		return constant{Kind: constNumber, Num: v.Num}, nil
	case value.KindBool:
		return constant{Kind: constBool, Bool: v.B}, nil
	case value.KindNil:
		return constant{Kind: constNil}, nil
	case value.KindObject:
		if s, ok := e.heap.AsString(v); ok {
			return constant{Kind: constString, Str: s.Value}, nil
		}
		if _, ok := e.heap.AsFunction(v); ok {
			idx, err := e.function(v.Ref)
			if err != nil {
				return constant{}, err
			}
			return constant{Kind: constFunction, Func: idx}, nil
		}
		return constant{}, fmt.Errorf("cannot encode %s", e.heap.TypeOf(v))
	default:
		return constant{}, fmt.Errorf("cannot encode value of kind %d", v.Kind)
	}
}

// Decode rebuilds the function graph in data on h, relinks global operands
// through linker and returns the entry function. The result is only
// reachable through the returned handle, so callers must root it before
// allocating again.
func Decode(h *heap.Heap, linker Linker, data []byte) (value.Ref, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return value.Ref{}, fmt.Errorf("image: unmarshal: %w", err)
	}
	if doc.Version != Version {
		return value.Ref{}, fmt.Errorf("%w %d (want %d)", ErrVersion, doc.Version, Version)
	}
	if doc.Entry < 0 || doc.Entry >= len(doc.Functions) {
		return value.Ref{}, fmt.Errorf("image: entry %d out of range", doc.Entry)
	}
	if entry := doc.Functions[doc.Entry]; entry.Arity != 0 || entry.Upvalues != 0 {
		return value.Ref{}, fmt.Errorf("image: entry takes %d arguments and %d upvalues (want none)", entry.Arity, entry.Upvalues)
	}

	d := &decoder{heap: h}
	h.AddRoot(d)
	defer h.RemoveRoot(d)

	for _, rec := range doc.Functions {
		ref, fn := h.NewFunction(rec.Name, rec.Source, rec.BaseLine)
		fn.Arity = rec.Arity
		fn.UpvalueCount = rec.Upvalues
		d.refs = append(d.refs, ref)
		d.funcs = append(d.funcs, fn)
	}
	for i, rec := range doc.Functions {
		if err := d.fill(d.funcs[i], rec, len(doc.Functions)); err != nil {
			return value.Ref{}, fmt.Errorf("image: function %d: %w", i, err)
		}
	}
	for i, fn := range d.funcs {
		if err := verify(h, fn); err != nil {
			return value.Ref{}, fmt.Errorf("image: %s: %w", fn.DisplayName(), err)
		}
		if err := relink(h, fn, doc.Globals, linker); err != nil {
			return value.Ref{}, fmt.Errorf("image: function %d: %w", i, err)
		}
	}
	return d.refs[doc.Entry], nil
}

type decoder struct {
	heap  *heap.Heap
	refs  []value.Ref
	funcs []*heap.Function
}

func (d *decoder) MarkRoots(mark func(value.Value)) {
	for _, ref := range d.refs {
		mark(value.Object(ref))
	}
}

func (d *decoder) fill(fn *heap.Function, rec function, total int) error {
	if rec.Arity < 0 || rec.Upvalues < 0 {
		return fmt.Errorf("negative arity or upvalue count")
	}
	if rec.Arity > maxOperand || rec.Upvalues > maxOperand {
		return fmt.Errorf("arity %d or upvalue count %d exceeds operand range", rec.Arity, rec.Upvalues)
	}
	if len(rec.LineStarts) != len(rec.Code) {
		return fmt.Errorf("line starts cover %d of %d bytes", len(rec.LineStarts), len(rec.Code))
	}
	if len(rec.Constants) > bytecode.MaxConstants {
		return fmt.Errorf("too many constants (%d)", len(rec.Constants))
	}
	chunk := fn.Chunk
	chunk.Code = rec.Code
	chunk.LineStarts = rec.LineStarts
	for _, li := range rec.Lines {
		chunk.Lines = append(chunk.Lines, bytecode.LineInfo{Offset: li.Offset, Line: li.Line})
	}
	for i, c := range rec.Constants {
		var v value.Value
		switch c.Kind {
		case constNumber:
			v = value.Number(c.Num)
		case constBool:
			v = value.Bool(c.Bool)
		case constNil:
			v = value.Nil()
		case constString:
			v = d.heap.NewString(c.Str)
		case constFunction:
			if c.Func < 0 || c.Func >= total {
				return fmt.Errorf("constant %d: function %d out of range", i, c.Func)
			}
			v = value.Object(d.refs[c.Func])
		default:
			return fmt.Errorf("constant %d: unknown kind %d", i, c.Kind)
		}
		chunk.Constants = append(chunk.Constants, v)
	}
	return nil
}

// relink rewrites global operands from the image's slot numbering to the
// loading interpreter's. Code must already have passed verify.
func relink(h *heap.Heap, fn *heap.Function, names []string, linker Linker) error {
	chunk := fn.Chunk
	upvalues := func(idx uint16) int {
		if f, ok := h.AsFunction(chunk.Constants[idx]); ok {
			return f.UpvalueCount
		}
		return 0
	}
	for ip := 0; ip < len(chunk.Code); ip += chunk.InstructionLength(ip, upvalues) {
		switch chunk.Code[ip] {
		case bytecode.OP_DEFINE_GLOBAL, bytecode.OP_SET_GLOBAL, bytecode.OP_GET_GLOBAL:
		default:
			continue
		}
		old := chunk.ReadU16(ip + 1)
		if int(old) >= len(names) {
			return fmt.Errorf("global %d at %04d has no name", old, ip)
		}
		idx, err := linker.Index(names[old])
		if err != nil {
			return err
		}
		chunk.Patch(ip+1, byte(idx))
		chunk.Patch(ip+2, byte(idx>>8))
	}
	return nil
}
