package image

import (
	"fmt"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/heap"
)

// maxOperand is the largest value a u16 operand can carry.
const maxOperand = 1<<16 - 1

// verify checks fn's code before it can run: every instruction is known
// and fits in the chunk, operands name constants, locals and upvalues that
// exist, jumps land on instruction boundaries, and every path reaches
// RETURN with a stack depth that never underflows.
func verify(h *heap.Heap, fn *heap.Function) error {
	chunk := fn.Chunk
	upvalues := func(idx uint16) int {
		if f, ok := h.AsFunction(chunk.Constants[idx]); ok {
			return f.UpvalueCount
		}
		return 0
	}
	if len(chunk.Code) == 0 {
		return fmt.Errorf("empty code")
	}
	starts := make([]bool, len(chunk.Code))
	for ip := 0; ip < len(chunk.Code); {
		op := chunk.Code[ip]
		if op > bytecode.OP_CLOSURE {
			return fmt.Errorf("unknown opcode %d at %04d", op, ip)
		}
		if (bytecode.HasU16Operand(op) || op == bytecode.OP_CLOSURE) && ip+3 > len(chunk.Code) {
			return fmt.Errorf("truncated %s at %04d", bytecode.OpName(op), ip)
		}
		switch op {
		case bytecode.OP_CONSTANT, bytecode.OP_CLOSURE:
			idx := chunk.ReadU16(ip + 1)
			if int(idx) >= len(chunk.Constants) {
				return fmt.Errorf("%s at %04d: constant %d out of range", bytecode.OpName(op), ip, idx)
			}
			if op == bytecode.OP_CLOSURE {
				if _, ok := h.AsFunction(chunk.Constants[idx]); !ok {
					return fmt.Errorf("%s at %04d: constant %d is not a function", bytecode.OpName(op), ip, idx)
				}
			}
		case bytecode.OP_GET_UPVALUE, bytecode.OP_SET_UPVALUE:
			if slot := chunk.ReadU16(ip + 1); int(slot) >= fn.UpvalueCount {
				return fmt.Errorf("%s at %04d: upvalue %d of %d", bytecode.OpName(op), ip, slot, fn.UpvalueCount)
			}
		}
		n := chunk.InstructionLength(ip, upvalues)
		if ip+n > len(chunk.Code) {
			return fmt.Errorf("truncated %s at %04d", bytecode.OpName(op), ip)
		}
		if op == bytecode.OP_CLOSURE {
			for at := ip + 3; at < ip+n; at += 3 {
				isLocal, index := chunk.Code[at], chunk.ReadU16(at+1)
				if isLocal > 1 {
					return fmt.Errorf("%s at %04d: bad capture flag %d", bytecode.OpName(op), ip, isLocal)
				}
				if isLocal == 0 && int(index) >= fn.UpvalueCount {
					return fmt.Errorf("%s at %04d: upvalue %d of %d", bytecode.OpName(op), ip, index, fn.UpvalueCount)
				}
			}
		}
		starts[ip] = true
		ip += n
	}
	return checkDepth(chunk, fn.Arity, starts, upvalues)
}

// stackEffect returns how many values op needs on the stack and the net
// change it makes. argc is the operand of CALL and TAIL_CALL.
func stackEffect(op byte, argc int) (need, delta int) {
	switch op {
	case bytecode.OP_CONSTANT, bytecode.OP_TRUE, bytecode.OP_FALSE, bytecode.OP_NIL,
		bytecode.OP_GET_GLOBAL, bytecode.OP_GET_LOCAL, bytecode.OP_GET_UPVALUE, bytecode.OP_CLOSURE:
		return 0, 1
	case bytecode.OP_POP, bytecode.OP_DEFINE_GLOBAL:
		return 1, -1
	case bytecode.OP_ADD, bytecode.OP_EQUAL, bytecode.OP_CONS:
		return 2, -1
	case bytecode.OP_NOT, bytecode.OP_SET_GLOBAL, bytecode.OP_SET_LOCAL, bytecode.OP_SET_UPVALUE,
		bytecode.OP_JUMP_IF_FALSE, bytecode.OP_RETURN:
		return 1, 0
	case bytecode.OP_CALL, bytecode.OP_TAIL_CALL:
		return argc + 1, -argc
	default:
		return 0, 0
	}
}

// checkDepth follows every path through the chunk tracking how many values
// sit above the frame's callee slot. Arguments occupy the first arity
// slots. Paths that meet must agree on the depth.
func checkDepth(chunk *bytecode.Chunk, arity int, starts []bool, upvalues func(uint16) int) error {
	code := chunk.Code
	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}
	depth[0] = arity
	work := []int{0}
	reach := func(from, to, d int) error {
		if to >= len(code) || !starts[to] {
			return fmt.Errorf("%s at %04d: target %04d is not an instruction", bytecode.OpName(code[from]), from, to)
		}
		switch depth[to] {
		case -1:
			depth[to] = d
			work = append(work, to)
		case d:
		default:
			return fmt.Errorf("stack depth %d and %d meet at %04d", depth[to], d, to)
		}
		return nil
	}
	for len(work) > 0 {
		ip := work[len(work)-1]
		work = work[:len(work)-1]
		d := depth[ip]
		op := code[ip]
		operand := 0
		if bytecode.HasU16Operand(op) || op == bytecode.OP_CLOSURE {
			operand = int(chunk.ReadU16(ip + 1))
		}
		need, delta := stackEffect(op, operand)
		if d < need {
			return fmt.Errorf("%s at %04d: stack underflow (%d of %d)", bytecode.OpName(op), ip, d, need)
		}
		n := chunk.InstructionLength(ip, upvalues)
		switch op {
		case bytecode.OP_GET_LOCAL, bytecode.OP_SET_LOCAL:
			if operand >= d {
				return fmt.Errorf("%s at %04d: local %d of %d", bytecode.OpName(op), ip, operand, d)
			}
		case bytecode.OP_CLOSURE:
			// the new closure is pushed before capturing, so it may
			// capture its own slot
			for at := ip + 3; at < ip+n; at += 3 {
				if code[at] == 1 && int(chunk.ReadU16(at+1)) > d {
					return fmt.Errorf("%s at %04d: captures local %d of %d", bytecode.OpName(op), ip, chunk.ReadU16(at+1), d+1)
				}
			}
		case bytecode.OP_RETURN:
			continue
		case bytecode.OP_JUMP:
			if err := reach(ip, ip+n+operand, d); err != nil {
				return err
			}
			continue
		case bytecode.OP_JUMP_IF_FALSE:
			if err := reach(ip, ip+n+operand, d); err != nil {
				return err
			}
		}
		if err := reach(ip, ip+n, d+delta); err != nil {
			return err
		}
	}
	return nil
}
