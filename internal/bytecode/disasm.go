package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xirelogy/go-lisp/internal/value"
)

// FunctionInfo describes a function constant for disassembly.
type FunctionInfo struct {
	Name     string
	Arity    int
	Upvalues int
	Chunk    *Chunk
}

// ObjectResolver renders heap-backed constants. The heap implements it.
type ObjectResolver interface {
	Describe(v value.Value) string
	FunctionInfo(v value.Value) (FunctionInfo, bool)
}

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w        io.Writer
	resolver ObjectResolver
	visited  map[*Chunk]bool
	printed  bool
}

// NewDisassembler constructs a disassembler that writes to w. resolver may
// be nil, in which case object constants print as handles.
func NewDisassembler(w io.Writer, resolver ObjectResolver) *Disassembler {
	return &Disassembler{
		w:        w,
		resolver: resolver,
		visited:  make(map[*Chunk]bool),
	}
}

// DisassembleFunction emits a dump for a function and any nested functions
// reachable through its constant pool.
func (d *Disassembler) DisassembleFunction(label string, info FunctionInfo) error {
	if info.Chunk == nil {
		return fmt.Errorf("nil chunk")
	}
	if d.visited[info.Chunk] {
		return nil
	}
	d.visited[info.Chunk] = true
	d.startSection()
	name := label
	if name == "" {
		name = info.Name
	}
	if name == "" {
		name = fmt.Sprintf("<lambda@line %d>", info.Chunk.BaseLine)
	}
	fmt.Fprintf(d.w, "== %s (arity=%d, upvalues=%d, line=%d) ==\n",
		name, info.Arity, info.Upvalues, info.Chunk.BaseLine)
	if err := d.disassembleChunk(info.Chunk); err != nil {
		return err
	}
	if d.resolver == nil {
		return nil
	}
	for _, c := range info.Chunk.Constants {
		child, ok := d.resolver.FunctionInfo(c)
		if !ok {
			continue
		}
		if err := d.DisassembleFunction("", child); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleChunk(chunk *Chunk) error {
	for ip := 0; ip < len(chunk.Code); {
		text, next, err := d.instruction(chunk, ip)
		if err != nil {
			return err
		}
		fmt.Fprintln(d.w, text)
		ip = next
	}
	return nil
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the following instruction.
func DisassembleInstruction(chunk *Chunk, offset int, resolver ObjectResolver) (string, int, error) {
	d := &Disassembler{resolver: resolver}
	return d.instruction(chunk, offset)
}

func (d *Disassembler) instruction(chunk *Chunk, offset int) (string, int, error) {
	if offset < 0 || offset >= len(chunk.Code) {
		return "", offset, fmt.Errorf("offset %d out of range", offset)
	}
	op := chunk.Code[offset]
	ip := offset + 1
	lineStr := "   |"
	if offset == 0 || (offset < len(chunk.LineStarts) && chunk.LineStarts[offset]) {
		lineStr = fmt.Sprintf("%4d", chunk.LineAt(offset))
	}
	operands, err := d.decodeOperands(op, chunk, &ip)
	if err != nil {
		return "", ip, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d %s %-16s", offset, lineStr, OpName(op))
	if operands != "" {
		sb.WriteString(" ")
		sb.WriteString(operands)
	}
	return strings.TrimRight(sb.String(), " "), ip, nil
}

func (d *Disassembler) decodeOperands(op byte, chunk *Chunk, ip *int) (string, error) {
	code := chunk.Code
	switch op {
	case OP_CONSTANT:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d ; %s", idx, d.formatConstRef(chunk, idx)), nil
	case OP_DEFINE_GLOBAL, OP_SET_GLOBAL, OP_GET_GLOBAL:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("g%d", idx), nil
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE, OP_CALL, OP_TAIL_CALL:
		slot, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(slot)), nil
	case OP_JUMP, OP_JUMP_IF_FALSE:
		off, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d -> %04d", off, *ip+int(off)), nil
	case OP_CLOSURE:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		upcount := 0
		if d.resolver != nil && int(idx) < len(chunk.Constants) {
			if info, ok := d.resolver.FunctionInfo(chunk.Constants[idx]); ok {
				upcount = info.Upvalues
			}
		}
		upvals := make([]string, 0, upcount)
		for i := 0; i < upcount; i++ {
			isLocal, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			slot, err := readU16(code, ip)
			if err != nil {
				return "", err
			}
			if isLocal == 1 {
				upvals = append(upvals, fmt.Sprintf("local %d", slot))
			} else {
				upvals = append(upvals, fmt.Sprintf("upvalue %d", slot))
			}
		}
		operand := fmt.Sprintf("%d ; %s", idx, d.formatConstRef(chunk, idx))
		if len(upvals) > 0 {
			operand += " [" + strings.Join(upvals, ", ") + "]"
		}
		return operand, nil
	default:
		if int(op) >= len(opNames) {
			return fmt.Sprintf("; unknown opcode 0x%02X", op), nil
		}
		return "", nil
	}
}

func readU8(code []byte, ip *int) (byte, error) {
	if *ip >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	val := code[*ip]
	*ip = *ip + 1
	return val, nil
}

func readU16(code []byte, ip *int) (uint16, error) {
	if *ip+1 >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	lo := code[*ip]
	hi := code[*ip+1]
	*ip += 2
	return uint16(hi)<<8 | uint16(lo), nil
}

func (d *Disassembler) formatConstRef(chunk *Chunk, idx uint16) string {
	if int(idx) >= len(chunk.Constants) {
		return "<invalid>"
	}
	return d.formatConst(chunk.Constants[idx])
}

func (d *Disassembler) formatConst(v value.Value) string {
	switch v.Kind {
	case value.KindNil:
		return "nil"
	case value.KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case value.KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case value.KindObject:
		if d.resolver != nil {
			return d.resolver.Describe(v)
		}
		return "object " + v.Ref.String()
	default:
		return "<" + v.Kind.String() + ">"
	}
}
