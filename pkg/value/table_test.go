package value

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func internedForTest(s string) *OString {
	return &OString{Object: Object{Type: ObjTypeString}, Chars: s, Hash: FNV1a(s)}
}

func TestTableSetGetDelete(t *testing.T) {
	tbl := NewTable[Value]()
	key := internedForTest("x")

	_, ok := tbl.Get(key)
	require.False(t, ok)

	isNew := tbl.Set(key, Number(42))
	require.True(t, isNew)

	got, ok := tbl.Get(key)
	require.True(t, ok)
	require.Equal(t, Number(42), got)

	isNew = tbl.Set(key, Number(43))
	require.False(t, isNew, "overwriting an existing key is not a new insert")

	require.True(t, tbl.Delete(key))
	_, ok = tbl.Get(key)
	require.False(t, ok)
	require.False(t, tbl.Delete(key), "deleting twice reports no entry found")
}

func TestTableGrowsAndRehashesUnderLoad(t *testing.T) {
	tbl := NewTable[Value]()
	keys := make([]*OString, 0, 100)
	for i := 0; i < 100; i++ {
		k := internedForTest(fmt.Sprintf("key%d", i))
		keys = append(keys, k)
		tbl.Set(k, Number(float64(i)))
	}
	require.Equal(t, 100, tbl.Len())
	for i, k := range keys {
		v, ok := tbl.Get(k)
		require.True(t, ok)
		require.Equal(t, Number(float64(i)), v)
	}
}

func TestTableFindStringLocatesByBytesAndHash(t *testing.T) {
	tbl := NewTable[struct{}]()
	key := internedForTest("hello")
	tbl.Set(key, struct{}{})

	found := tbl.FindString("hello", FNV1a("hello"))
	require.Same(t, key, found, "FindString must return the exact interned pointer")

	require.Nil(t, tbl.FindString("goodbye", FNV1a("goodbye")))
}

func TestTableRemoveWhiteDropsUnmarkedStrings(t *testing.T) {
	tbl := NewTable[struct{}]()
	live := internedForTest("live")
	live.IsMarked = true
	dead := internedForTest("dead")

	tbl.Set(live, struct{}{})
	tbl.Set(dead, struct{}{})

	tbl.RemoveWhite()

	require.NotNil(t, tbl.FindString("live", live.Hash))
	require.Nil(t, tbl.FindString("dead", dead.Hash))
}

func TestTableEachVisitsEveryLiveEntry(t *testing.T) {
	tbl := NewTable[Value]()
	a := internedForTest("a")
	tbl.Set(a, Number(1))
	tbl.Set(internedForTest("b"), Number(2))
	tbl.Delete(a) // tombstone the slot
	tbl.Set(a, Number(1))

	seen := map[string]float64{}
	tbl.Each(func(key *OString, val Value) {
		seen[key.Chars] = val.AsNumber()
	})
	require.Equal(t, map[string]float64{"a": 1, "b": 2}, seen)
}
