package image

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	_ "github.com/xirelogy/go-lisp/internal/builtins"
	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/compiler"
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/value"
	"github.com/xirelogy/go-lisp/internal/vm"
)

const program = `
(define (adder x) (lambda (y) (+ x y)))
(define add5 (adder 5))
(define (loop n acc) (if (= n 0) acc (loop (+ n -1) (+ acc 1))))
(cons (add5 10) (cons (loop 1000 0) (cons "s" nil)))
`

func compileImage(t *testing.T, src string) ([]byte, *vm.VM, value.Ref) {
	t.Helper()
	machine := vm.New(heap.New(heap.Config{}), vm.Options{})
	fn, err := compiler.Compile(machine.Heap(), machine.Globals(), "image", src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	data, err := Encode(machine.Heap(), fn, machine.Globals().Names())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data, machine, fn
}

func runImage(t *testing.T, cfg heap.Config, data []byte) (*vm.VM, value.Value, error) {
	t.Helper()
	machine := vm.New(heap.New(cfg), vm.Options{})
	fn, err := Decode(machine.Heap(), machine.Globals(), data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, err := machine.Run(fn)
	return machine, v, err
}

func TestRoundTripRunsIdentically(t *testing.T) {
	data, src, fn := compileImage(t, program)
	want, err := src.Run(fn)
	if err != nil {
		t.Fatalf("run source: %v", err)
	}
	wantText := src.Heap().Format(want)
	if wantText != `(15 1000 "s")` {
		t.Fatalf("unexpected source result %s", wantText)
	}

	for _, stress := range []bool{false, true} {
		machine, got, err := runImage(t, heap.Config{Stress: stress}, data)
		if err != nil {
			t.Fatalf("run image (stress=%v): %v", stress, err)
		}
		if text := machine.Heap().Format(got); text != wantText {
			t.Fatalf("stress=%v: expected %s, got %s", stress, wantText, text)
		}
		if _, ok := machine.Global("add5"); !ok {
			t.Fatalf("expected image run to define add5")
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, _, _ := compileImage(t, program)
	b, _, _ := compileImage(t, program)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical encodings")
	}
}

func TestRoundTripKeepsLines(t *testing.T) {
	data, _, _ := compileImage(t, "\n\n(define (f x) (car x))\n(+ (f 1) 1)")
	_, _, err := runImage(t, heap.Config{}, data)
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if rerr.Frame.Function != "f" || rerr.Frame.Line != 3 {
		t.Fatalf("expected failure in f at line 3, got %+v", rerr.Frame)
	}
	if len(rerr.Stack) != 2 || rerr.Stack[1].Function != compiler.ScriptName || rerr.Stack[1].Line != 4 {
		t.Fatalf("unexpected stack %+v", rerr.Stack)
	}
}

func TestRelinksGlobals(t *testing.T) {
	data, _, _ := compileImage(t, "(define a 1) (define b 2) (+ a b)")
	machine := vm.New(heap.New(heap.Config{}), vm.Options{})
	// Shift slot numbering so image operands no longer line up.
	for _, name := range []string{"x", "y", "z"} {
		if _, err := machine.Globals().Index(name); err != nil {
			t.Fatalf("index: %v", err)
		}
	}
	fn, err := Decode(machine.Heap(), machine.Globals(), data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, err := machine.Run(fn)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := machine.Heap().Format(v); got != "3" {
		t.Fatalf("expected 3, got %s", got)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	h := heap.New(heap.Config{})
	machine := vm.New(h, vm.Options{})

	if _, err := Decode(h, machine.Globals(), []byte{0xff}); err == nil {
		t.Fatalf("expected unmarshal error")
	}

	future, err := encMode.Marshal(document{Version: Version + 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Decode(h, machine.Globals(), future); !errors.Is(err, ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}

	closure := func(upvalues int, captures ...byte) []function {
		code := append([]byte{bytecode.OP_CLOSURE, 0, 0}, captures...)
		code = append(code, bytecode.OP_RETURN)
		return []function{
			{Code: code, LineStarts: make([]bool, len(code)), Constants: []constant{{Kind: constFunction, Func: 1}}},
			{Upvalues: upvalues, Code: []byte{bytecode.OP_NIL, bytecode.OP_RETURN}, LineStarts: []bool{true, false}},
		}
	}
	cases := []struct {
		name  string
		funcs []function
		want  string
	}{
		{"truncated operand", []function{record(bytecode.OP_CONSTANT, 0)}, "truncated"},
		{"constant out of range", []function{record(bytecode.OP_CONSTANT, 3, 0)}, "out of range"},
		{"empty code", []function{record()}, "empty code"},
		{"upvalue without cells", []function{record(bytecode.OP_GET_UPVALUE, 0, 0, bytecode.OP_RETURN)}, "upvalue 0 of 0"},
		{"local past the stack", []function{record(bytecode.OP_GET_LOCAL, 9, 0, bytecode.OP_RETURN)}, "local 9 of 0"},
		{"pop on empty stack", []function{record(bytecode.OP_POP, bytecode.OP_POP, bytecode.OP_NIL, bytecode.OP_RETURN)}, "underflow"},
		{"call without callee", []function{record(bytecode.OP_NIL, bytecode.OP_CALL, 1, 0, bytecode.OP_RETURN)}, "underflow"},
		{"jump past the end", []function{record(bytecode.OP_JUMP, 9, 0, bytecode.OP_NIL, bytecode.OP_RETURN)}, "not an instruction"},
		{"jump into an operand", []function{record(bytecode.OP_JUMP, 1, 0, bytecode.OP_GET_LOCAL, 0, 0, bytecode.OP_RETURN)}, "not an instruction"},
		{"falls off the end", []function{record(bytecode.OP_NIL)}, "not an instruction"},
		{"branches disagree", []function{record(
			bytecode.OP_TRUE, bytecode.OP_JUMP_IF_FALSE, 1, 0,
			bytecode.OP_NIL, bytecode.OP_RETURN,
		)}, "meet at"},
		{"entry with upvalues", []function{{Upvalues: 1, Code: []byte{bytecode.OP_NIL, bytecode.OP_RETURN}, LineStarts: []bool{true, false}}}, "entry"},
		{"entry with parameters", []function{{Arity: 2, Code: []byte{bytecode.OP_NIL, bytecode.OP_RETURN}, LineStarts: []bool{true, false}}}, "entry"},
		{"oversized upvalue count", closure(1 << 20), "operand range"},
		{"bad capture flag", closure(1, 2, 0, 0), "capture flag"},
		{"capture of missing upvalue", closure(1, 0, 0, 0), "upvalue 0 of 0"},
		{"capture of missing local", closure(1, 1, 4, 0), "captures local 4"},
	}
	for _, tc := range cases {
		data, err := encMode.Marshal(document{Version: Version, Functions: tc.funcs})
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.name, err)
		}
		if _, err := Decode(h, machine.Globals(), data); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}

	// the new closure is pushed before it captures, so its own slot is in
	// range
	data, err := encMode.Marshal(document{Version: Version, Functions: closure(1, 1, 0, 0)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Decode(h, machine.Globals(), data); err != nil {
		t.Fatalf("expected self capture to verify, got %v", err)
	}
}

// record builds a parameterless function record around code.
func record(code ...byte) function {
	return function{Code: code, LineStarts: make([]bool, len(code))}
}

func TestEncodeRejectsNonFunction(t *testing.T) {
	h := heap.New(heap.Config{})
	pair := h.NewPair(value.Number(1), value.Nil())
	if _, err := Encode(h, pair.Ref, nil); err == nil {
		t.Fatalf("expected error for non-function entry")
	}
}
