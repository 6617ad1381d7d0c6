package pipeline

import (
	"context"
	"sync"

	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l3window"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
)

// scriptedModel returns a fixed sequence of classifications, repeating the
// last one once the script runs out.
type scriptedModel struct {
	mu       sync.Mutex
	script   []l4model.Classification
	err      error
	calls    int
	lastSnap *l3window.Snapshot

	// entered, when set, receives once per call before the gate.
	entered chan struct{}
	// gate, when set, blocks every call until it is closed.
	gate chan struct{}
}

func (m *scriptedModel) Initialize(context.Context) error { return nil }

func (m *scriptedModel) Classify(_ context.Context, snap *l3window.Snapshot) (l4model.Classification, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSnap = snap
	i := m.calls
	m.calls++
	if m.err != nil {
		return l4model.Classification{}, m.err
	}
	if i >= len(m.script) {
		i = len(m.script) - 1
	}
	return m.script[i], nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func cls(p l4model.Phase, quality float64) l4model.Classification {
	return l4model.Classification{
		ExerciseType:   "squat",
		TypeConfidence: 0.9,
		RepPhase:       p,
		FormQuality:    quality,
	}
}

func repeat(c l4model.Classification, n int) []l4model.Classification {
	out := make([]l4model.Classification, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// poseFrame returns a 33-landmark frame; drop lowers every point by dy.
func poseFrame(i int, dy float64) l1landmarks.PoseFrame {
	lms := make([]l1landmarks.Landmark, len(l1landmarks.BlazePoseNames))
	for k := range lms {
		lms[k] = l1landmarks.Landmark{
			X: 0.3 + 0.012*float64(k),
			Y: 0.1 + 0.02*float64(k) + dy,
			Z: -0.05 + 0.001*float64(k),
		}
	}
	return l1landmarks.PoseFrame{TimestampMs: int64(i) * 33, Landmarks: lms}
}
