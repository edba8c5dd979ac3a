package natives

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/glox/pkg/value"
)

func TestClockNativeIsNonNegative(t *testing.T) {
	result, err := clockNative(nil)
	require.NoError(t, err)
	require.True(t, result.IsNumber())
	require.GreaterOrEqual(t, result.AsNumber(), 0.0)
}

func TestShowNativeReturnsArgCountAndPrintsToHeapOutput(t *testing.T) {
	h := &recordingHeap{out: &bytes.Buffer{}}
	show := showNativeFor(h)
	result, err := show([]value.Value{value.Number(1), value.Bool(true), value.Nil})
	require.NoError(t, err)
	require.Equal(t, value.Number(3), result)
	require.Equal(t, "show(1, true, nil)\n", h.out.String())
}

func TestAppendNativeMutatesList(t *testing.T) {
	list := value.NewList([]value.Value{value.Number(1)})
	_, err := appendNative([]value.Value{list.Val(), value.Number(2)})
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.Number(1), value.Number(2)}, list.Items)
}

func TestAppendNativeOnNonListIsError(t *testing.T) {
	_, err := appendNative([]value.Value{value.Number(1), value.Number(2)})
	require.Error(t, err)
}

func TestDeleteNativeRemovesAtIndex(t *testing.T) {
	list := value.NewList([]value.Value{value.Number(1), value.Number(2), value.Number(3)})
	_, err := deleteNative([]value.Value{list.Val(), value.Number(1)})
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.Number(1), value.Number(3)}, list.Items)
}

func TestDeleteNativeOutOfBoundsIsError(t *testing.T) {
	list := value.NewList([]value.Value{value.Number(1)})
	_, err := deleteNative([]value.Value{list.Val(), value.Number(5)})
	require.Error(t, err)
}

func TestInstallRegistersEveryNative(t *testing.T) {
	h := &recordingHeap{}
	Install(h)
	require.Equal(t, []string{"clock", "show", "exit", "append", "delete"}, h.names)
}

type recordingHeap struct {
	names []string
	out   *bytes.Buffer
}

func (h *recordingHeap) DefineNative(name string, arity int, fn value.NativeFn) {
	h.names = append(h.names, name)
}

func (h *recordingHeap) Output() io.Writer {
	if h.out == nil {
		h.out = &bytes.Buffer{}
	}
	return h.out
}
