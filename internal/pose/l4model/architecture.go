package l4model

import (
	"fmt"

	"github.com/banshee-data/physio.track/internal/config"
)

// Architecture fixes every dimension of the network. Two networks with equal
// architectures can exchange weights.
type Architecture struct {
	SequenceLength int     `json:"sequence_length"`
	FeatureDim     int     `json:"feature_dim"`
	Hidden1        int     `json:"hidden_1"`
	Hidden2        int     `json:"hidden_2"`
	Dense          int     `json:"dense"`
	Dropout        float64 `json:"dropout"`
	NumTypes       int     `json:"num_types"`
	NumPhases      int     `json:"num_phases"`
}

// ArchitectureFromConfig derives the architecture from the tuning config.
func ArchitectureFromConfig(cfg *config.TuningConfig) Architecture {
	return Architecture{
		SequenceLength: cfg.GetSequenceLength(),
		FeatureDim:     cfg.GetFeatureCount(),
		Hidden1:        cfg.GetHiddenUnits1(),
		Hidden2:        cfg.GetHiddenUnits2(),
		Dense:          cfg.GetDenseUnits(),
		Dropout:        cfg.GetDropoutRate(),
		NumTypes:       len(ExerciseTypes),
		NumPhases:      NumPhases,
	}
}

// DefaultArchitecture is 30 steps of 33 landmarks x 3 coordinates.
func DefaultArchitecture() Architecture {
	return ArchitectureFromConfig(config.EmptyTuningConfig())
}

// Validate checks that every dimension is positive and the head widths
// match the label sets.
func (a Architecture) Validate() error {
	switch {
	case a.SequenceLength <= 0:
		return fmt.Errorf("sequence_length must be positive, got %d", a.SequenceLength)
	case a.FeatureDim <= 0:
		return fmt.Errorf("feature_dim must be positive, got %d", a.FeatureDim)
	case a.Hidden1 <= 0 || a.Hidden2 <= 0 || a.Dense <= 0:
		return fmt.Errorf("layer sizes must be positive, got %d/%d/%d", a.Hidden1, a.Hidden2, a.Dense)
	case a.Dropout < 0 || a.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0,1), got %v", a.Dropout)
	case a.NumTypes != len(ExerciseTypes):
		return fmt.Errorf("num_types %d does not match %d exercise labels", a.NumTypes, len(ExerciseTypes))
	case a.NumPhases != NumPhases:
		return fmt.Errorf("num_phases must be %d, got %d", NumPhases, a.NumPhases)
	}
	return nil
}
