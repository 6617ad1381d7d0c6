package l2features

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
)

// tPose returns a 33-landmark T-pose in normalized image coordinates.
func tPose() l1landmarks.PoseFrame {
	lms := make([]l1landmarks.Landmark, 33)
	for i := range lms {
		lms[i] = l1landmarks.Landmark{
			X: 0.3 + 0.4*float64(i%11)/10,
			Y: 0.1 + 0.8*float64(i/11)/2,
			Z: -0.05 * float64(i%3),
		}
	}
	return l1landmarks.PoseFrame{TimestampMs: 1000, Landmarks: lms}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestNormalize_TranslationAndScaleInvariant(t *testing.T) {
	base := tPose()
	want, err := Normalize(base, true)
	require.NoError(t, err)
	require.Len(t, want, 99)

	tests := []struct {
		name  string
		frame l1landmarks.PoseFrame
	}{
		{"translated", base.Translate(120, -37.5)},
		{"scaled up", base.Scale(640)},
		{"scaled down", base.Scale(0.01)},
		{"scaled and translated", base.Scale(3).Translate(-4, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.frame, true)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, approx); diff != "" {
				t.Errorf("feature vector mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_CenterAndScale(t *testing.T) {
	frame := l1landmarks.PoseFrame{Landmarks: []l1landmarks.Landmark{
		{X: 0, Y: 0, Z: 2},
		{X: 4, Y: 2, Z: 0},
	}}
	got, err := Normalize(frame, true)
	require.NoError(t, err)
	// center (2,1), scale 4
	want := []float64{-0.5, -0.25, 0.5, 0.5, 0.25, 0}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got2D, err := Normalize(frame, false)
	require.NoError(t, err)
	assert.Len(t, got2D, 4)
}

func TestNormalize_DegenerateBoxUsesUnitScale(t *testing.T) {
	frame := l1landmarks.PoseFrame{Landmarks: []l1landmarks.Landmark{{X: 3, Y: 3, Z: 1}, {X: 3, Y: 3, Z: 1}}}
	got, err := Normalize(frame, true)
	require.NoError(t, err)
	for _, v := range got {
		assert.False(t, math.IsNaN(v))
	}
	assert.Equal(t, []float64{0, 0, 1, 0, 0, 1}, got)
}

func TestNormalize_Errors(t *testing.T) {
	_, err := Normalize(l1landmarks.PoseFrame{TimestampMs: 7}, true)
	var nerr *NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, int64(7), nerr.TimestampMs)
	assert.True(t, errors.Is(err, ErrEmptyFrame))

	bad := tPose()
	bad.Landmarks = append([]l1landmarks.Landmark(nil), bad.Landmarks...)
	bad.Landmarks[0].X = math.Inf(-1)
	vec, err := Normalize(bad, true)
	assert.Nil(t, vec)
	assert.True(t, errors.Is(err, ErrNonFinite))
}

func TestNormalizer_LandmarkCount(t *testing.T) {
	n := NewNormalizer(33, true)
	assert.Equal(t, 99, n.Dim())

	_, err := n.Normalize(l1landmarks.PoseFrame{Landmarks: make([]l1landmarks.Landmark, 17)})
	assert.True(t, errors.Is(err, ErrLandmarkCount))

	vec, err := n.Normalize(tPose())
	require.NoError(t, err)
	assert.Len(t, vec, 99)

	assert.Equal(t, 34, FeatureDim(17, false))
}

func TestSetLogWriters_TraceDroppedFrames(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(nil, nil, &buf)
	defer SetLogWriters(nil, nil, nil)

	_, err := NewNormalizer(0, true).Normalize(l1landmarks.PoseFrame{TimestampMs: 42})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "[l2features] ")
	assert.Contains(t, buf.String(), "ts=42")
}
