package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/physio.track/internal/pose/l4model"
)

func TestReadSequences_Envelope(t *testing.T) {
	seqs, err := readSequences(strings.NewReader(`{"sequences":[
		{"exercise_type":"squat","frames":[],"phases":[],"quality_score":70},
		{"exercise_type":"plank","frames":[],"phases":[],"quality_score":90}]}`))
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, "plank", seqs[1].ExerciseType)
}

func TestReadSequences_JSONL(t *testing.T) {
	data := `{"exercise_type":"squat","frames":[{"timestamp_ms":1,"landmarks":[{"x":0.1,"y":0.2,"z":0}]}],"phases":["down"],"quality_score":70}

{"exercise_type":"lunges","frames":[],"phases":[],"quality_score":55}
`
	seqs, err := readSequences(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, l4model.PhaseDown, seqs[0].Phases[0])
	assert.Len(t, seqs[0].Frames, 1)

	_, err = readSequences(strings.NewReader("{\"exercise_type\":\"squat\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = readSequences(strings.NewReader("  "))
	assert.Error(t, err)
}
