// Package vm - error handling with stack traces. Adapted from the
// teacher's pkg/vm/errors.go RuntimeError/StackFrame shape, generalized
// from its flat interpreter frames to this spec's call-frame model
// (closure + chunk line table instead of a single selector+IP pair).
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call frame's position at the moment a runtime
// error was raised: the function it was executing and the source line of
// the instruction about to run.
type StackFrame struct {
	FunctionName string
	Line         int
}

// RuntimeError is returned by Interpret when execution fails after
// compiling successfully. Error() renders it newest-frame-first, per
// spec §7/§6: "<message>\n[line N] in <name>\n..."
type RuntimeError struct {
	Message string
	Frames  []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := len(e.Frames) - 1; i >= 0; i-- {
		f := e.Frames[i]
		b.WriteByte('\n')
		fmt.Fprintf(&b, "[line %d] in %s", f.Line, f.FunctionName)
	}
	return b.String()
}
