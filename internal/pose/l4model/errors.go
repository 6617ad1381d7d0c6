package l4model

import (
	"errors"
	"fmt"
)

var (
	// ErrShape is returned when the input window does not match the architecture.
	ErrShape = errors.New("input shape does not match model architecture")
	// ErrModelUnavailable is returned before Initialize or after Close.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrTrainingInProgress is returned to inference and training callers while a fit holds the model.
	ErrTrainingInProgress = errors.New("training in progress")
	// ErrNonFiniteOutput is returned when a forward pass yields NaN or Inf.
	ErrNonFiniteOutput = errors.New("model produced non-finite output")
	// ErrBlobNotFound is returned by a Store when no blob exists for a key.
	ErrBlobNotFound = errors.New("model blob not found")
	// ErrArchitectureMismatch is returned when persisted weights were built for another architecture.
	ErrArchitectureMismatch = errors.New("persisted architecture differs from configured architecture")
)

// InferenceError reports a skipped classification. The window is retained.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ModelInitError reports persisted weights that could not be used. The handle
// still becomes ready with a freshly constructed, untrained network.
type ModelInitError struct {
	Key string
	Err error
}

func (e *ModelInitError) Error() string {
	return fmt.Sprintf("model %q: persisted weights unusable, using fresh model: %v", e.Key, e.Err)
}

func (e *ModelInitError) Unwrap() error { return e.Err }
