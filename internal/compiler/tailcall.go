package compiler

import (
	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/heap"
)

// markTailCalls rewrites every CALL whose result flows straight into RETURN,
// following unconditional jumps, into TAIL_CALL.
func (c *Compiler) markTailCalls(fn *heap.Function) {
	chunk := fn.Chunk
	upvalues := func(idx uint16) int {
		if f, ok := c.heap.AsFunction(chunk.Constants[idx]); ok {
			return f.UpvalueCount
		}
		return 0
	}
	for ip := 0; ip < len(chunk.Code); ip += chunk.InstructionLength(ip, upvalues) {
		if chunk.Code[ip] == bytecode.OP_CALL && returnsDirectly(chunk, ip+3) {
			chunk.Code[ip] = bytecode.OP_TAIL_CALL
		}
	}
}

func returnsDirectly(chunk *bytecode.Chunk, ip int) bool {
	for ip < len(chunk.Code) {
		switch chunk.Code[ip] {
		case bytecode.OP_RETURN:
			return true
		case bytecode.OP_JUMP:
			ip += 3 + int(chunk.ReadU16(ip+1))
		default:
			return false
		}
	}
	return false
}
