package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/glox/pkg/value"
)

// Disassemble writes a human-readable listing of chunk to w, one
// instruction per line, in the same spirit as the teacher's
// pkg/bytecode/format.go disassembler. It is a debugging aid only — spec
// §1 lists the disassembler among the external, not-respecified
// collaborators, so this implementation is intentionally minimal.
func Disassemble(w io.Writer, chunk *value.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = disassembleInstruction(w, chunk, offset)
	}
}

func disassembleInstruction(w io.Writer, chunk *value.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.Lines[offset])
	}

	op := Op(chunk.Code[offset])
	switch op {
	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess, OpAdd,
		OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate, OpPrint,
		OpCloseUpvalue, OpReturn, OpInherit, OpIndexSubscr, OpStoreSubscr:
		fmt.Fprintln(w, op)
		return offset + 1
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpClass,
		OpGetProperty, OpSetProperty, OpMethod, OpGetSuper:
		idx := chunk.Code[offset+1]
		fmt.Fprintf(w, "%-18s %4d '%v'\n", op, idx, chunk.Constants[idx])
		return offset + 2
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall, OpBuildList:
		slot := chunk.Code[offset+1]
		fmt.Fprintf(w, "%-18s %4d\n", op, slot)
		return offset + 2
	case OpInvoke:
		idx := chunk.Code[offset+1]
		argCount := chunk.Code[offset+2]
		fmt.Fprintf(w, "%-18s (%d args) %4d '%v'\n", op, argCount, idx, chunk.Constants[idx])
		return offset + 3
	case OpJump, OpJumpIfFalse:
		jump := binary.BigEndian.Uint16(chunk.Code[offset+1:])
		fmt.Fprintf(w, "%-18s %4d -> %d\n", op, offset, int(offset)+3+int(jump))
		return offset + 3
	case OpLoop:
		jump := binary.BigEndian.Uint16(chunk.Code[offset+1:])
		fmt.Fprintf(w, "%-18s %4d -> %d\n", op, offset, int(offset)+3-int(jump))
		return offset + 3
	case OpClosure:
		idx := chunk.Code[offset+1]
		offset += 2
		fmt.Fprintf(w, "%-18s %4d '%v'\n", op, idx, chunk.Constants[idx])
		fn := value.AsFunction(chunk.Constants[idx])
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := chunk.Code[offset]
			index := chunk.Code[offset+1]
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d      |                     %s %d\n", offset, kind, index)
			offset += 2
		}
		return offset
	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", op)
		return offset + 1
	}
}
