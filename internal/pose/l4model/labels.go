package l4model

import (
	"fmt"
	"strings"
)

// Phase is the coarse position within a repetition cycle.
// The numeric order matches the phase head's output order.
type Phase int

const (
	PhaseUp Phase = iota
	PhaseDown
	PhaseNeutral
)

// NumPhases is the width of the phase head.
const NumPhases = 3

var phaseNames = [NumPhases]string{"up", "down", "neutral"}

func (p Phase) String() string {
	if p < 0 || int(p) >= NumPhases {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the three phases.
func (p Phase) Valid() bool { return p >= 0 && int(p) < NumPhases }

// ParsePhase maps "up", "down" or "neutral" (any case) to a Phase.
func ParsePhase(s string) (Phase, error) {
	for i, n := range phaseNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return Phase(i), nil
		}
	}
	return PhaseNeutral, fmt.Errorf("unknown phase %q", s)
}

// MarshalText encodes the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ExerciseTypes is the fixed label set of the type head, in output order.
var ExerciseTypes = []string{
	"push-up",
	"squat",
	"bicep-curl",
	"plank",
	"lunges",
	"jumping-jacks",
	"burpees",
	"mountain-climbers",
	"sit-ups",
	"other",
}

// ExerciseIndex returns the type-head index of name, or -1.
func ExerciseIndex(name string) int {
	for i, n := range ExerciseTypes {
		if n == name {
			return i
		}
	}
	return -1
}
