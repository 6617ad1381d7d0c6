package training

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSequences is returned when Train receives nothing to learn from.
	ErrNoSequences = errors.New("no labeled sequences")
	// ErrInsufficientWindows is returned when a label yields no full window.
	ErrInsufficientWindows = errors.New("fewer than one full window for label")
	// ErrUnknownExercise is returned for a label outside the exercise set.
	ErrUnknownExercise = errors.New("unknown exercise type")
	// ErrMalformedSequence is returned for inconsistent frame and phase data.
	ErrMalformedSequence = errors.New("malformed labeled sequence")
	// ErrRunNotFound is returned by run ledgers for an unknown run ID.
	ErrRunNotFound = errors.New("training run not found")
)

// TrainingDataError reports labeled data that cannot be trained on.
// Training aborts and the previous model is untouched.
type TrainingDataError struct {
	// Sequence is the offending sequence index, or -1 for the whole set.
	Sequence int
	Label    string
	Reason   string
	Err      error
}

func (e *TrainingDataError) Error() string {
	switch {
	case e.Sequence >= 0 && e.Label != "":
		return fmt.Sprintf("training data: sequence %d (%s): %s", e.Sequence, e.Label, e.Reason)
	case e.Sequence >= 0:
		return fmt.Sprintf("training data: sequence %d: %s", e.Sequence, e.Reason)
	case e.Label != "":
		return fmt.Sprintf("training data: label %s: %s", e.Label, e.Reason)
	default:
		return fmt.Sprintf("training data: %s", e.Reason)
	}
}

func (e *TrainingDataError) Unwrap() error { return e.Err }
