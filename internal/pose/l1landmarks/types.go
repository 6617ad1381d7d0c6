package l1landmarks

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoLandmarks is returned when a frame carries zero landmarks.
var ErrNoLandmarks = errors.New("pose frame has no landmarks")

// Landmark is one tracked body-joint position in detector-native
// coordinates. Visibility is optional; detectors that do not report it leave
// it nil.
type Landmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// PoseFrame is an ordered set of landmarks for one camera frame.
// Frames are treated as immutable once created: nothing downstream writes to
// Landmarks, and NewPoseFrame copies the caller's slice.
type PoseFrame struct {
	TimestampMs int64      `json:"timestamp_ms"`
	Landmarks   []Landmark `json:"landmarks"`
}

// NewPoseFrame builds a frame from a copy of landmarks.
func NewPoseFrame(ts time.Time, landmarks []Landmark) PoseFrame {
	lms := make([]Landmark, len(landmarks))
	copy(lms, landmarks)
	return PoseFrame{TimestampMs: ts.UnixMilli(), Landmarks: lms}
}

// Time returns the frame timestamp.
func (f PoseFrame) Time() time.Time {
	return time.UnixMilli(f.TimestampMs)
}

// Len returns the number of landmarks K.
func (f PoseFrame) Len() int { return len(f.Landmarks) }

// Validate reports whether the frame can be normalized: it must carry at
// least one landmark and every coordinate must be finite.
func (f PoseFrame) Validate() error {
	if len(f.Landmarks) == 0 {
		return ErrNoLandmarks
	}
	for i, lm := range f.Landmarks {
		if !finite(lm.X) || !finite(lm.Y) || !finite(lm.Z) {
			return fmt.Errorf("landmark %d (%s) has non-finite coordinates", i, Name(len(f.Landmarks), i))
		}
		if lm.Visibility != nil && (*lm.Visibility < 0 || *lm.Visibility > 1 || math.IsNaN(*lm.Visibility)) {
			return fmt.Errorf("landmark %d visibility %v outside [0,1]", i, *lm.Visibility)
		}
	}
	return nil
}

// MeanVisibility averages the visibility of landmarks that report one.
// Returns 1 when no landmark reports visibility.
func (f PoseFrame) MeanVisibility() float64 {
	var sum float64
	var n int
	for _, lm := range f.Landmarks {
		if lm.Visibility != nil {
			sum += *lm.Visibility
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// Translate returns a copy of the frame shifted by (dx, dy).
func (f PoseFrame) Translate(dx, dy float64) PoseFrame {
	out := PoseFrame{TimestampMs: f.TimestampMs, Landmarks: make([]Landmark, len(f.Landmarks))}
	for i, lm := range f.Landmarks {
		lm.X += dx
		lm.Y += dy
		out.Landmarks[i] = lm
	}
	return out
}

// Scale returns a copy of the frame with every coordinate multiplied by s.
func (f PoseFrame) Scale(s float64) PoseFrame {
	out := PoseFrame{TimestampMs: f.TimestampMs, Landmarks: make([]Landmark, len(f.Landmarks))}
	for i, lm := range f.Landmarks {
		lm.X *= s
		lm.Y *= s
		lm.Z *= s
		out.Landmarks[i] = lm
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
