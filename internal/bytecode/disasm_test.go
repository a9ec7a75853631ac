package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xirelogy/go-lisp/internal/value"
)

type fakeResolver struct {
	funcs map[value.Ref]FunctionInfo
}

func (r *fakeResolver) Describe(v value.Value) string {
	if info, ok := r.funcs[v.Ref]; ok {
		return "<fn " + info.Name + ">"
	}
	return "?"
}

func (r *fakeResolver) FunctionInfo(v value.Value) (FunctionInfo, bool) {
	if !v.IsObject() {
		return FunctionInfo{}, false
	}
	info, ok := r.funcs[v.Ref]
	return info, ok
}

func TestDisassembleLineColumn(t *testing.T) {
	c := NewChunk(0)
	c.Write(OP_CONSTANT, 1)
	c.WriteU16(c.AddConstant(value.Number(2.5)), 1)
	c.Write(OP_POP, 1)
	c.Write(OP_NIL, 2)
	c.Write(OP_RETURN, 2)

	var buf bytes.Buffer
	dis := NewDisassembler(&buf, nil)
	if err := dis.DisassembleFunction("script", FunctionInfo{Chunk: c}); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "0000    1 OP_CONSTANT") || !strings.Contains(lines[1], "; 2.5") {
		t.Fatalf("unexpected constant line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "0003    | OP_POP") {
		t.Fatalf("expected continuation column, got %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "0004    2 OP_NIL") {
		t.Fatalf("expected new line number, got %q", lines[3])
	}
}

func TestDisassembleNestedClosure(t *testing.T) {
	inner := NewChunk(3)
	inner.Write(OP_GET_UPVALUE, 3)
	inner.WriteU16(0, 3)
	inner.Write(OP_RETURN, 3)

	outer := NewChunk(1)
	ref := value.Ref{Index: 7, Gen: 1}
	idx := outer.AddConstant(value.Object(ref))
	outer.Write(OP_CLOSURE, 3)
	outer.WriteU16(idx, 3)
	outer.Write(1, 3)
	outer.WriteU16(2, 3)
	outer.Write(OP_RETURN, 3)

	res := &fakeResolver{funcs: map[value.Ref]FunctionInfo{
		ref: {Name: "inner", Arity: 1, Upvalues: 1, Chunk: inner},
	}}
	var buf bytes.Buffer
	dis := NewDisassembler(&buf, res)
	if err := dis.DisassembleFunction("outer", FunctionInfo{Chunk: outer}); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "OP_CLOSURE") || !strings.Contains(out, "[local 2]") {
		t.Fatalf("expected closure upvalue operands, got:\n%s", out)
	}
	if !strings.Contains(out, "== inner (arity=1, upvalues=1, line=3) ==") {
		t.Fatalf("expected nested section, got:\n%s", out)
	}
	if !strings.Contains(out, "0004    | OP_RETURN") && !strings.Contains(out, "0006    | OP_RETURN") {
		t.Fatalf("expected return after closure operands, got:\n%s", out)
	}
}

func TestDisassembleInstructionJump(t *testing.T) {
	c := NewChunk(1)
	c.Write(OP_JUMP, 1)
	c.WriteU16(1, 1)
	c.Write(OP_TRUE, 1)
	c.Write(OP_RETURN, 1)
	text, next, err := DisassembleInstruction(c, 0, nil)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if next != 3 {
		t.Fatalf("expected next offset 3, got %d", next)
	}
	if !strings.Contains(text, "1 -> 0004") {
		t.Fatalf("expected jump target, got %q", text)
	}
}
