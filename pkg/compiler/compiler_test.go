package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/value"
)

// fakeHeap is a minimal Heap that allocates directly, without GC
// bookkeeping, so compiler tests can assert on emitted bytecode in
// isolation from pkg/vm.
type fakeHeap struct {
	strings map[string]*value.OString
}

func newFakeHeap() *fakeHeap { return &fakeHeap{strings: map[string]*value.OString{}} }

func (h *fakeHeap) InternString(s string) *value.OString {
	if existing, ok := h.strings[s]; ok {
		return existing
	}
	str := &value.OString{Object: value.Object{Type: value.ObjTypeString}, Chars: s, Hash: value.FNV1a(s)}
	h.strings[s] = str
	return str
}

func (h *fakeHeap) NewFunction() *value.OFunction   { return value.NewFunction() }
func (h *fakeHeap) Push(v value.Value)              {}
func (h *fakeHeap) Pop() value.Value                { return value.Nil }
func (h *fakeHeap) MarkObject(o *value.Object)       {}
func (h *fakeHeap) SetCompilerRoots(fn func())       {}

func opsOf(t *testing.T, fn *value.OFunction) []bytecode.Op {
	t.Helper()
	var ops []bytecode.Op
	for _, b := range fn.Chunk.Code {
		ops = append(ops, bytecode.Op(b))
	}
	return ops
}

func TestCompileSimpleArithmeticExpressionStatement(t *testing.T) {
	fn, ok := Compile("1 + 2;", newFakeHeap())
	require.True(t, ok)
	require.Len(t, fn.Chunk.Constants, 2)
	require.Equal(t, value.Number(1), fn.Chunk.Constants[0])
	require.Equal(t, value.Number(2), fn.Chunk.Constants[1])

	// CONSTANT 0, CONSTANT 1, ADD, POP, NIL, RETURN
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpAdd))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpPop))
	require.Equal(t, byte(bytecode.OpReturn), fn.Chunk.Code[len(fn.Chunk.Code)-1])
}

func TestCompileGlobalVarRoundTrip(t *testing.T) {
	fn, ok := Compile(`var x = 10; print x;`, newFakeHeap())
	require.True(t, ok)
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpDefineGlobal))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpGetGlobal))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpPrint))
}

func TestCompileLocalUsesGetSetLocalNotGlobal(t *testing.T) {
	fn, ok := Compile(`{ var x = 1; x = 2; print x; }`, newFakeHeap())
	require.True(t, ok)
	require.NotContains(t, fn.Chunk.Code, byte(bytecode.OpDefineGlobal))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpSetLocal))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpGetLocal))
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	src := `
		fun outer() {
			var x = 1;
			fun inner() { return x; }
			return inner;
		}
	`
	fn, ok := Compile(src, newFakeHeap())
	require.True(t, ok)
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpClosure))

	// Constants of the script: 0 = "outer", 1 = outer's function. Outer's
	// constants: 0 = the number 1, 1 = inner's function, which captures x
	// as its one upvalue.
	outer := value.AsFunction(fn.Chunk.Constants[1])
	inner := value.AsFunction(outer.Chunk.Constants[1])
	require.Equal(t, 1, inner.UpvalueCount)
}

func TestCompileReportsErrorOnInvalidAssignmentTarget(t *testing.T) {
	_, ok := Compile(`1 = 2;`, newFakeHeap())
	require.False(t, ok)
}

func TestCompileReportsErrorOnReturnAtTopLevel(t *testing.T) {
	_, ok := Compile(`return 1;`, newFakeHeap())
	require.False(t, ok)
}

func TestCompileReportsErrorOnSelfInheritance(t *testing.T) {
	_, ok := Compile(`class Oops < Oops {}`, newFakeHeap())
	require.False(t, ok)
}

func TestCompileClassEmitsClassMethodAndInherit(t *testing.T) {
	src := `
		class Animal { speak() { print "..."; } }
		class Dog < Animal { bark() { print "woof"; } }
	`
	fn, ok := Compile(src, newFakeHeap())
	require.True(t, ok)
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpClass))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpMethod))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpInherit))
}

func TestCompileListLiteralAndSubscript(t *testing.T) {
	fn, ok := Compile(`var l = [1, 2, 3]; print l[0];`, newFakeHeap())
	require.True(t, ok)
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpBuildList))
	require.Contains(t, fn.Chunk.Code, byte(bytecode.OpIndexSubscr))
}

func TestCompileMoreThan255ArgumentsIsCompileError(t *testing.T) {
	src := "fun f() {}\nf("
	for i := 0; i < 256; i++ {
		if i > 0 {
			src += ","
		}
		src += "1"
	}
	src += ");"
	_, ok := Compile(src, newFakeHeap())
	require.False(t, ok)
}
