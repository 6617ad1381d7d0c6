package l1landmarks

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vis(v float64) *float64 { return &v }

func TestNewPoseFrame_CopiesLandmarks(t *testing.T) {
	lms := []Landmark{{X: 1, Y: 2}, {X: 3, Y: 4}}
	ts := time.UnixMilli(1_700_000_000_123)
	f := NewPoseFrame(ts, lms)

	lms[0].X = 99
	assert.Equal(t, 1.0, f.Landmarks[0].X)
	assert.Equal(t, int64(1_700_000_000_123), f.TimestampMs)
	assert.True(t, f.Time().Equal(ts))
	assert.Equal(t, 2, f.Len())
}

func TestPoseFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frame   PoseFrame
		wantErr bool
	}{
		{"empty", PoseFrame{}, true},
		{"ok", PoseFrame{Landmarks: []Landmark{{X: 0.1, Y: 0.2, Z: -0.1, Visibility: vis(0.9)}}}, false},
		{"nan x", PoseFrame{Landmarks: []Landmark{{X: math.NaN()}}}, true},
		{"inf z", PoseFrame{Landmarks: []Landmark{{Z: math.Inf(1)}}}, true},
		{"visibility above one", PoseFrame{Landmarks: []Landmark{{Visibility: vis(1.5)}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.True(t, errors.Is(PoseFrame{}.Validate(), ErrNoLandmarks))
}

func TestPoseFrame_ValidateNamesBlazePoseLandmark(t *testing.T) {
	lms := make([]Landmark, len(BlazePoseNames))
	lms[11].Y = math.NaN()
	err := PoseFrame{Landmarks: lms}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "left_shoulder")
}

func TestPoseFrame_MeanVisibility(t *testing.T) {
	f := PoseFrame{Landmarks: []Landmark{{Visibility: vis(0.5)}, {Visibility: vis(1)}, {}}}
	assert.InDelta(t, 0.75, f.MeanVisibility(), 1e-12)
	assert.Equal(t, 1.0, PoseFrame{Landmarks: []Landmark{{}}}.MeanVisibility())
}

func TestPoseFrame_TranslateScaleDoNotMutate(t *testing.T) {
	f := PoseFrame{TimestampMs: 5, Landmarks: []Landmark{{X: 1, Y: 2, Z: 3}}}
	moved := f.Translate(10, -1).Scale(2)

	assert.Equal(t, Landmark{X: 1, Y: 2, Z: 3}, f.Landmarks[0])
	assert.Equal(t, Landmark{X: 22, Y: 2, Z: 6}, moved.Landmarks[0])
	assert.Equal(t, int64(5), moved.TimestampMs)
}

func TestName(t *testing.T) {
	assert.Equal(t, "nose", Name(33, 0))
	assert.Equal(t, "right_foot_index", Name(33, 32))
	assert.Equal(t, "left_hip", Name(17, 11))
	assert.Equal(t, "landmark_4", Name(5, 4))
	assert.Equal(t, "landmark_40", Name(33, 40))
}

func TestDecodeFrames(t *testing.T) {
	single := `{"timestamp_ms": 10, "landmarks": [{"x": 0.5, "y": 0.25, "z": 0, "visibility": 0.8}]}`
	frames, err := DecodeFrames([]byte(single))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, int64(10), frames[0].TimestampMs)
	require.NotNil(t, frames[0].Landmarks[0].Visibility)
	assert.Equal(t, 0.8, *frames[0].Landmarks[0].Visibility)

	batch := `{"frames": [{"timestamp_ms": 1, "landmarks": []}, {"timestamp_ms": 2, "landmarks": [{"x": 1, "y": 1}]}]}`
	frames, err = DecodeFrames([]byte(batch))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(2), frames[1].TimestampMs)

	_, err = DecodeFrames([]byte("  "))
	assert.Error(t, err)
	_, err = DecodeFrames([]byte(`{"frames": [`))
	assert.Error(t, err)
}

func TestReadFramesJSONL(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp_ms": 1, "landmarks": [{"x": 0, "y": 0}]}`,
		``,
		`{"timestamp_ms": 2, "landmarks": [{"x": 1, "y": 1}]}`,
	}, "\n")
	frames, err := ReadFramesJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(2), frames[1].TimestampMs)

	_, err = ReadFramesJSONL(strings.NewReader("{\"timestamp_ms\": 1}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
