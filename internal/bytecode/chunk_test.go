package bytecode

import (
	"testing"

	"github.com/xirelogy/go-lisp/internal/value"
)

func TestLineStarts(t *testing.T) {
	c := NewChunk(0)
	c.Write(OP_NIL, 1)
	c.Write(OP_POP, 1)
	c.Write(OP_NIL, 3)
	c.Write(OP_POP, 2)
	c.Write(OP_NIL, 4)
	want := []bool{true, false, true, false, true}
	for i, w := range want {
		if c.LineStarts[i] != w {
			t.Fatalf("byte %d: expected line start %v, got %v", i, w, c.LineStarts[i])
		}
	}
	lines := []int{1, 1, 3, 2, 4}
	for i, w := range lines {
		if got := c.LineAt(i); got != w {
			t.Fatalf("byte %d: expected line %d, got %d", i, w, got)
		}
	}
}

func TestU16LittleEndian(t *testing.T) {
	c := NewChunk(1)
	c.Write(OP_CONSTANT, 1)
	c.WriteU16(0x1234, 1)
	if c.Code[1] != 0x34 || c.Code[2] != 0x12 {
		t.Fatalf("expected low byte first, got %x %x", c.Code[1], c.Code[2])
	}
	if got := c.ReadU16(1); got != 0x1234 {
		t.Fatalf("expected 0x1234, got %#x", got)
	}
}

func TestConstantsDense(t *testing.T) {
	c := NewChunk(1)
	for i := 0; i < 5; i++ {
		if idx := c.AddConstant(value.Number(1)); int(idx) != i {
			t.Fatalf("expected index %d, got %d", i, idx)
		}
	}
}

func TestInstructionLength(t *testing.T) {
	c := NewChunk(1)
	c.Write(OP_CLOSURE, 1)
	c.WriteU16(0, 1)
	c.Write(1, 1)
	c.WriteU16(0, 1)
	c.Write(0, 1)
	c.WriteU16(1, 1)
	c.Write(OP_RETURN, 1)
	n := c.InstructionLength(0, func(uint16) int { return 2 })
	if n != 9 {
		t.Fatalf("expected 9, got %d", n)
	}
	if c.InstructionLength(9, nil) != 1 {
		t.Fatalf("expected RETURN length 1")
	}
}
