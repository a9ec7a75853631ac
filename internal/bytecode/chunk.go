package bytecode

import "github.com/xirelogy/go-lisp/internal/value"

// MaxConstants is the size of the u16 constant index space.
const MaxConstants = 1 << 16

// Chunk is a compiled bytecode sequence with its constant pool.
type Chunk struct {
	BaseLine  int
	Code      []byte
	Constants []value.Value
	// LineStarts[i] is true when byte i begins a source line greater than
	// every line recorded before it.
	LineStarts []bool
	Lines      []LineInfo

	maxLine int
}

// LineInfo maps bytecode offsets to source lines (start-inclusive).
type LineInfo struct {
	Offset int
	Line   int
}

// NewChunk creates an empty chunk for a function starting at baseLine.
func NewChunk(baseLine int) *Chunk {
	return &Chunk{BaseLine: baseLine, maxLine: baseLine}
}

// Write appends one byte produced by source line line.
func (c *Chunk) Write(b byte, line int) {
	off := len(c.Code)
	c.Code = append(c.Code, b)
	if line > c.maxLine {
		c.maxLine = line
		c.LineStarts = append(c.LineStarts, true)
	} else {
		c.LineStarts = append(c.LineStarts, false)
	}
	if line <= 0 {
		return
	}
	if n := len(c.Lines); n == 0 || c.Lines[n-1].Line != line {
		c.Lines = append(c.Lines, LineInfo{Offset: off, Line: line})
	}
}

// WriteU16 appends v little-endian.
func (c *Chunk) WriteU16(v uint16, line int) {
	c.Write(byte(v), line)
	c.Write(byte(v>>8), line)
}

// AddConstant appends v to the pool and returns its index. Slots are never
// shared; callers check len(Constants) against MaxConstants first.
func (c *Chunk) AddConstant(v value.Value) uint16 {
	c.Constants = append(c.Constants, v)
	return uint16(len(c.Constants) - 1)
}

// Patch overwrites a previously written byte.
func (c *Chunk) Patch(offset int, b byte) {
	c.Code[offset] = b
}

// ReadU16 decodes the little-endian operand at offset.
func (c *Chunk) ReadU16(offset int) uint16 {
	return uint16(c.Code[offset]) | uint16(c.Code[offset+1])<<8
}

// LineAt returns the source line that produced the byte at offset.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 {
		return c.BaseLine
	}
	line := c.BaseLine
	for _, info := range c.Lines {
		if info.Offset > offset {
			break
		}
		line = info.Line
	}
	return line
}

// InstructionLength returns the byte length of the instruction at offset.
// upvalueCount resolves the upvalue count of the function constant named
// by a CLOSURE operand.
func (c *Chunk) InstructionLength(offset int, upvalueCount func(constIdx uint16) int) int {
	op := c.Code[offset]
	switch {
	case op == OP_CLOSURE:
		n := 0
		if upvalueCount != nil {
			n = upvalueCount(c.ReadU16(offset + 1))
		}
		return 3 + 3*n
	case HasU16Operand(op):
		return 3
	default:
		return 1
	}
}
