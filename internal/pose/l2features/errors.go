package l2features

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFrame is returned for a frame with zero landmarks.
	ErrEmptyFrame = errors.New("frame has no landmarks")
	// ErrLandmarkCount is returned when a frame's K differs from the configured count.
	ErrLandmarkCount = errors.New("unexpected landmark count")
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("non-finite landmark coordinate")
)

// NormalizationError reports a frame that could not be turned into a feature
// vector. The frame is dropped and no session state changes.
type NormalizationError struct {
	TimestampMs int64
	Reason      string
	Err         error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize frame at %dms: %s", e.TimestampMs, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }
