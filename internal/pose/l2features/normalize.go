package l2features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
)

// Normalizer turns pose frames into feature vectors of length 2K or 3K.
// A zero LandmarkCount accepts frames of any size.
type Normalizer struct {
	LandmarkCount int
	IncludeZ      bool
}

// NewNormalizer returns a Normalizer for frames with k landmarks.
func NewNormalizer(k int, includeZ bool) *Normalizer {
	return &Normalizer{LandmarkCount: k, IncludeZ: includeZ}
}

// Dim returns the feature-vector length produced for the configured K.
func (n *Normalizer) Dim() int {
	return FeatureDim(n.LandmarkCount, n.IncludeZ)
}

// FeatureDim returns 3k when z is included and 2k otherwise.
func FeatureDim(k int, includeZ bool) int {
	if includeZ {
		return 3 * k
	}
	return 2 * k
}

// Normalize converts one frame. It is a pure function of the frame.
func (n *Normalizer) Normalize(frame l1landmarks.PoseFrame) ([]float64, error) {
	if n.LandmarkCount > 0 && len(frame.Landmarks) != 0 && len(frame.Landmarks) != n.LandmarkCount {
		return nil, &NormalizationError{
			TimestampMs: frame.TimestampMs,
			Reason:      fmt.Sprintf("got %d landmarks, want %d", len(frame.Landmarks), n.LandmarkCount),
			Err:         ErrLandmarkCount,
		}
	}
	vec, err := Normalize(frame, n.IncludeZ)
	if err != nil {
		tracef("dropped frame ts=%d: %v", frame.TimestampMs, err)
		return nil, err
	}
	return vec, nil
}

// Normalize centers every landmark on the bounding-box midpoint and divides
// by the larger bounding-box side. z, when included, is divided by the same
// scale so uniform zoom leaves it unchanged. A degenerate box (all landmarks
// coincident) uses scale 1.
func Normalize(frame l1landmarks.PoseFrame, includeZ bool) ([]float64, error) {
	k := len(frame.Landmarks)
	if k == 0 {
		return nil, &NormalizationError{TimestampMs: frame.TimestampMs, Reason: "no landmarks", Err: ErrEmptyFrame}
	}

	xs := make([]float64, k)
	ys := make([]float64, k)
	for i, lm := range frame.Landmarks {
		if math.IsNaN(lm.X) || math.IsNaN(lm.Y) || math.IsNaN(lm.Z) ||
			math.IsInf(lm.X, 0) || math.IsInf(lm.Y, 0) || math.IsInf(lm.Z, 0) {
			return nil, &NormalizationError{
				TimestampMs: frame.TimestampMs,
				Reason:      fmt.Sprintf("landmark %d (%s) is not finite", i, l1landmarks.Name(k, i)),
				Err:         ErrNonFinite,
			}
		}
		xs[i] = lm.X
		ys[i] = lm.Y
	}

	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	scale := math.Max(maxX-minX, maxY-minY)
	if scale == 0 {
		scale = 1
	}

	stride := 2
	if includeZ {
		stride = 3
	}
	out := make([]float64, stride*k)
	for i, lm := range frame.Landmarks {
		out[i*stride] = (lm.X - cx) / scale
		out[i*stride+1] = (lm.Y - cy) / scale
		if includeZ {
			out[i*stride+2] = lm.Z / scale
		}
	}
	return out, nil
}
