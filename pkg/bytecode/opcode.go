// Package bytecode defines the glox instruction set and a disassembler
// over pkg/value.Chunk.
//
// Instruction encoding (spec §4.G "Emitted instructions"):
//
//	opcode byte, then zero or more operand bytes depending on the opcode:
//	  u8  - constant-pool index, stack/upvalue slot, arg count
//	  u16 - big-endian jump offset
//	  u8,u8 - INVOKE's (name index, arg count) pair
//	  u8 + 2*N bytes - CLOSURE's constant index followed by N
//	                   (isLocal, sourceIndex) pairs, one per declared upvalue
//
// This mirrors the teacher's pkg/bytecode layout (a dedicated Opcode byte
// type with a String() disassembly table) but moves from the teacher's
// fixed {Op, Operand int} record to a raw byte stream, because spec §4.G
// requires forward jump patching over specific byte offsets (JUMP/
// JUMP_IF_FALSE/LOOP) and variable-width operands that a single int
// operand field can't express uniformly.
package bytecode

// Op is a single bytecode instruction opcode.
type Op byte

const (
	OpConstant Op = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal
	OpGetLocal
	OpSetLocal
	OpGetUpvalue
	OpSetUpvalue
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpCall
	OpLoop
	OpCloseUpvalue
	OpReturn
	OpClass
	OpGetProperty
	OpSetProperty
	OpMethod
	OpInvoke
	OpInherit
	OpGetSuper
	OpClosure
	OpBuildList
	OpIndexSubscr
	OpStoreSubscr
)

var names = map[Op]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpCall:         "OP_CALL",
	OpLoop:         "OP_LOOP",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpMethod:       "OP_METHOD",
	OpInvoke:       "OP_INVOKE",
	OpInherit:      "OP_INHERIT",
	OpGetSuper:     "OP_GET_SUPER",
	OpClosure:      "OP_CLOSURE",
	OpBuildList:    "OP_BUILD_LIST",
	OpIndexSubscr:  "OP_INDEX_SUBSCR",
	OpStoreSubscr:  "OP_STORE_SUBSCR",
}

func (op Op) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "OP_UNKNOWN"
}
