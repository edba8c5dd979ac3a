package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualCrossTypeIsFalse(t *testing.T) {
	require.False(t, Equal(Number(0), Bool(false)))
	require.False(t, Equal(Nil, Bool(false)))
	require.False(t, Equal(Number(1), Nil))
}

func TestEqualNumberFollowsIEEE754(t *testing.T) {
	require.True(t, Equal(Number(1), Number(1)))
	nan := Number(nan())
	require.False(t, Equal(nan, nan))
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestEqualObjectIsIdentity(t *testing.T) {
	a := &OString{Object: Object{Type: ObjTypeString}, Chars: "hi"}
	b := &OString{Object: Object{Type: ObjTypeString}, Chars: "hi"}
	require.False(t, Equal(a.Val(), b.Val()), "distinct allocations with equal bytes must not compare equal without interning")
	require.True(t, Equal(a.Val(), a.Val()))
}

func TestIsFalsey(t *testing.T) {
	require.True(t, Nil.IsFalsey())
	require.True(t, Bool(false).IsFalsey())
	require.False(t, Bool(true).IsFalsey())
	require.False(t, Number(0).IsFalsey(), "0 is truthy")
	s := &OString{Object: Object{Type: ObjTypeString}}
	require.False(t, s.Val().IsFalsey(), "empty string is truthy")
}

func TestStringifyPrimitives(t *testing.T) {
	require.Equal(t, "nil", Stringify(Nil))
	require.Equal(t, "true", Stringify(Bool(true)))
	require.Equal(t, "1.5", Stringify(Number(1.5)))
	require.Equal(t, "3", Stringify(Number(3)))
}

func TestStringifyFunctionAndScript(t *testing.T) {
	fn := NewFunction()
	require.Equal(t, "<script>", Stringify(fn.Val()))
	fn.Name = &OString{Object: Object{Type: ObjTypeString}, Chars: "area"}
	require.Equal(t, "<fn area>", Stringify(fn.Val()))
}

func TestStringifyList(t *testing.T) {
	l := NewList([]Value{Number(1), Number(2), Bool(true)})
	require.Equal(t, "[1, 2, true]", Stringify(l.Val()))
}

func TestFNV1aMatchesKnownValue(t *testing.T) {
	// FNV-1a 32-bit of the empty string is the offset basis itself.
	require.Equal(t, uint32(2166136261), FNV1a(""))
}
