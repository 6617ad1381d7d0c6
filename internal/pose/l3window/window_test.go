package l3window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(v float64) []float64 { return []float64{v, -v} }

func TestWindow_BoundAndOrder(t *testing.T) {
	w := New(30, 2)
	for i := 0; i < 75; i++ {
		require.NoError(t, w.Push(vec(float64(i))))
		assert.LessOrEqual(t, w.Len(), 30)
		assert.Equal(t, i >= 29, w.IsFull(), "push %d", i)
	}

	// holds exactly the last 30 in arrival order
	for i := 0; i < 30; i++ {
		assert.Equal(t, vec(float64(45+i)), w.At(i))
	}
}

func TestWindow_FullOnLthPush(t *testing.T) {
	w := New(3, 0)
	require.NoError(t, w.Push([]float64{1}))
	require.NoError(t, w.Push([]float64{2}))
	assert.False(t, w.IsFull())
	require.NoError(t, w.Push([]float64{3}))
	assert.True(t, w.IsFull())
	assert.Equal(t, 1, w.Dim())
}

func TestWindow_RejectsBadVectors(t *testing.T) {
	w := New(4, 3)
	assert.Error(t, w.Push(nil))
	assert.Error(t, w.Push([]float64{1, 2}))
	assert.Equal(t, 0, w.Len())
}

func TestWindow_PushCopiesInput(t *testing.T) {
	w := New(2, 2)
	v := []float64{1, 2}
	require.NoError(t, w.Push(v))
	v[0] = 100
	assert.Equal(t, []float64{1, 2}, w.At(0))
}

func TestWindow_Reset(t *testing.T) {
	w := New(3, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Push(vec(float64(i))))
	}
	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.False(t, w.IsFull())
	assert.Nil(t, w.Snapshot())

	require.NoError(t, w.Push(vec(9)))
	assert.Equal(t, vec(9), w.At(0))
}

func TestWindow_SnapshotIsIndependent(t *testing.T) {
	w := New(3, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Push(vec(float64(i))))
	}
	snap := w.Snapshot()
	require.NoError(t, w.Push(vec(99)))

	assert.Equal(t, 3, snap.Steps())
	assert.Equal(t, 2, snap.Dim())
	assert.Equal(t, vec(0), snap.Step(0))
	assert.Equal(t, vec(2), snap.Step(2))
	assert.Equal(t, vec(99), w.At(2))
}

func TestWindow_AtPanicsOutOfRange(t *testing.T) {
	w := New(2, 1)
	assert.Panics(t, func() { w.At(0) })
}

func TestNewSnapshot(t *testing.T) {
	s, err := NewSnapshot([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, s.Step(1))

	_, err = NewSnapshot([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
	_, err = NewSnapshot(nil)
	assert.Error(t, err)
}
