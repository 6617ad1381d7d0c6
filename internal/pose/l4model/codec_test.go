package l4model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights_RoundTrip(t *testing.T) {
	a := tinyArch()
	n, err := NewNetwork(a, 21)
	require.NoError(t, err)

	data, err := EncodeWeights(n)
	require.NoError(t, err)

	// dropout is not part of the weight identity
	loadArch := a
	loadArch.Dropout = 0.3
	got, err := DecodeWeights(loadArch, data)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Arch.Dropout)

	snap := snapshotOf(t, randomSteps(a, 4))
	want, err := n.Predict(snap)
	require.NoError(t, err)
	have, err := got.Predict(snap)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestDecodeWeights_Errors(t *testing.T) {
	a := tinyArch()
	n, err := NewNetwork(a, 21)
	require.NoError(t, err)
	data, err := EncodeWeights(n)
	require.NoError(t, err)

	_, err = DecodeWeights(a, []byte("not json"))
	assert.Error(t, err)

	_, err = DecodeWeights(a, []byte(`{"format": 99}`))
	assert.Error(t, err)

	other := a
	other.Hidden1 = 5
	_, err = DecodeWeights(other, data)
	assert.True(t, errors.Is(err, ErrArchitectureMismatch))

	_, err = DecodeWeights(a, []byte(`{"format": 1, "architecture": {"sequence_length": 4, "feature_dim": 3, "hidden_1": 3, "hidden_2": 2, "dense": 4, "num_types": 10, "num_phases": 3}, "params": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing tensor")
}
