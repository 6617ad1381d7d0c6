package l4model

import (
	"context"

	"github.com/banshee-data/physio.track/internal/pose/l3window"
)

// Classification is the result of one inference pass over a full window.
type Classification struct {
	ExerciseType   string    `json:"exercise_type"`
	TypeConfidence float64   `json:"type_confidence"`
	TypeProbs      []float64 `json:"type_probs,omitempty"`
	RepPhase       Phase     `json:"rep_phase"`
	PhaseProbs     []float64 `json:"phase_probs,omitempty"`
	// FormQuality is the sigmoid output in [0,1].
	FormQuality float64 `json:"form_quality"`
}

// FormScore reports FormQuality on the 0-100 scale.
func (c Classification) FormScore() float64 { return c.FormQuality * 100 }

// Classifier produces one Classification per full-window snapshot.
// Implementations must not retain the snapshot.
type Classifier interface {
	Classify(ctx context.Context, snap *l3window.Snapshot) (Classification, error)
}
