package l5reps

import "github.com/banshee-data/physio.track/internal/pose/l4model"

// Transition describes the effect of one observed phase.
type Transition struct {
	From, To l4model.Phase
	// Rep is set when the transition completed a repetition.
	Rep bool
	// RepCount is the counter after the transition.
	RepCount int
}

// Changed reports whether the tracker moved to a new phase.
func (t Transition) Changed() bool { return t.From != t.To }

// Tracker is the rep/phase state machine. It starts in neutral and counts
// one repetition on every down -> up edge. Repeated phases and every other
// edge leave the count unchanged. It is not safe for concurrent use.
//
// Classifications arrive once per full window, which filters single-frame
// noise, but output that oscillates down, up, down, up still counts each
// down -> up edge.
type Tracker struct {
	phase    l4model.Phase
	repCount int
}

// NewTracker returns a tracker in the neutral state with zero reps.
func NewTracker() *Tracker {
	return &Tracker{phase: l4model.PhaseNeutral}
}

// Observe feeds one classified phase. Invalid phases are ignored.
func (t *Tracker) Observe(p l4model.Phase) Transition {
	tr := Transition{From: t.phase, To: t.phase, RepCount: t.repCount}
	if !p.Valid() || p == t.phase {
		return tr
	}
	if t.phase == l4model.PhaseDown && p == l4model.PhaseUp {
		t.repCount++
		tr.Rep = true
		tr.RepCount = t.repCount
	}
	t.phase = p
	tr.To = p
	return tr
}

// Phase returns the current state.
func (t *Tracker) Phase() l4model.Phase { return t.phase }

// RepCount returns the number of completed repetitions.
func (t *Tracker) RepCount() int { return t.repCount }

// Reset returns to neutral with zero reps.
func (t *Tracker) Reset() {
	t.phase = l4model.PhaseNeutral
	t.repCount = 0
}
