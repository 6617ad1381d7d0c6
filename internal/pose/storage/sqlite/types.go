package sqlite

import (
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/training"
)

// Type aliases for the domain types persisted by these stores.

// Blob is a persisted model (architecture plus encoded weights).
type Blob = l4model.Blob

// TrainingRun is one recorded training attempt.
type TrainingRun = training.Run

// TrainingStatus is the lifecycle state of a training run.
type TrainingStatus = training.Status

var (
	_ l4model.Store      = (*ModelStore)(nil)
	_ training.RunLedger = (*TrainingRunStore)(nil)
)
