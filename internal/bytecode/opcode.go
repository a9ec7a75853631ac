package bytecode

// OpCode enumerates bytecode operations. Operands follow the opcode and are
// little-endian u16 unless noted.
const (
	OP_CONSTANT      byte = iota // u16 constant index
	OP_ADD                       //
	OP_NOT                       //
	OP_EQUAL                     //
	OP_CONS                      //
	OP_TRUE                      //
	OP_FALSE                     //
	OP_NIL                       //
	OP_DEFINE_GLOBAL             // u16 global index
	OP_SET_GLOBAL                // u16 global index
	OP_GET_GLOBAL                // u16 global index
	OP_GET_LOCAL                 // u16 local index
	OP_SET_LOCAL                 // u16 local index
	OP_GET_UPVALUE               // u16 upvalue index
	OP_SET_UPVALUE               // u16 upvalue index
	OP_RETURN                    //
	OP_POP                       //
	OP_JUMP                      // u16 forward offset
	OP_JUMP_IF_FALSE             // u16 forward offset
	OP_CALL                      // u16 argc
	OP_TAIL_CALL                 // u16 argc
	OP_CLOSURE                   // u16 constant index, then per upvalue: u8 is_local, u16 index
)

var opNames = [...]string{
	OP_CONSTANT:      "OP_CONSTANT",
	OP_ADD:           "OP_ADD",
	OP_NOT:           "OP_NOT",
	OP_EQUAL:         "OP_EQUAL",
	OP_CONS:          "OP_CONS",
	OP_TRUE:          "OP_TRUE",
	OP_FALSE:         "OP_FALSE",
	OP_NIL:           "OP_NIL",
	OP_DEFINE_GLOBAL: "OP_DEFINE_GLOBAL",
	OP_SET_GLOBAL:    "OP_SET_GLOBAL",
	OP_GET_GLOBAL:    "OP_GET_GLOBAL",
	OP_GET_LOCAL:     "OP_GET_LOCAL",
	OP_SET_LOCAL:     "OP_SET_LOCAL",
	OP_GET_UPVALUE:   "OP_GET_UPVALUE",
	OP_SET_UPVALUE:   "OP_SET_UPVALUE",
	OP_RETURN:        "OP_RETURN",
	OP_POP:           "OP_POP",
	OP_JUMP:          "OP_JUMP",
	OP_JUMP_IF_FALSE: "OP_JUMP_IF_FALSE",
	OP_CALL:          "OP_CALL",
	OP_TAIL_CALL:     "OP_TAIL_CALL",
	OP_CLOSURE:       "OP_CLOSURE",
}

// OpName returns the mnemonic for op.
func OpName(op byte) string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "OP_UNKNOWN"
}

// HasU16Operand reports whether op is followed by exactly one u16 operand.
func HasU16Operand(op byte) bool {
	switch op {
	case OP_CONSTANT, OP_DEFINE_GLOBAL, OP_SET_GLOBAL, OP_GET_GLOBAL,
		OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE,
		OP_JUMP, OP_JUMP_IF_FALSE, OP_CALL, OP_TAIL_CALL:
		return true
	default:
		return false
	}
}
