package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/l6form"
	"github.com/banshee-data/physio.track/internal/pose/training"
	"github.com/banshee-data/physio.track/internal/timeutil"
)

// ErrTrainingUnavailable is returned by Train when no trainer is configured.
var ErrTrainingUnavailable = errors.New("training is not configured for this analyzer")

// Analyzer is the host-facing capability shared by the live and simulated
// backends.
type Analyzer interface {
	// Initialize prepares the backend. A *l4model.ModelInitError is
	// informational: the analyzer is usable with a fresh model.
	Initialize(ctx context.Context) error
	// OnPoseFrame feeds one detector frame. It never returns per-frame
	// errors; failed frames are dropped and counted.
	OnPoseFrame(frame l1landmarks.PoseFrame)
	// GetMetrics returns a snapshot. Safe to call at any frequency.
	GetMetrics() SessionMetrics
	// ResetSession clears the metrics and the window without touching the model.
	ResetSession()
	// Start resumes frame intake and metrics polling; Stop halts both
	// synchronously.
	Start()
	Stop()
	// Train fits the model from labeled sequences.
	Train(ctx context.Context, seqs []training.LabeledSequence) (*training.Summary, error)
	// SetCallbacks installs the host callbacks.
	SetCallbacks(cb Callbacks)
	// WatchMetrics registers a sink for polled snapshots while started.
	WatchMetrics(sink func(SessionMetrics))
	// Close stops the analyzer and waits for its goroutines.
	Close() error
}

// Callbacks are invoked by the analyzer outside its internal lock.
type Callbacks struct {
	// OnRepCompleted fires exactly once per counted repetition.
	OnRepCompleted func(repCount int)
	// OnFormFeedback fires at most once per feedback interval.
	OnFormFeedback func(message string, severity l6form.Severity)
}

// SessionMetrics is the observable state of one exercise session.
type SessionMetrics struct {
	Backend          string           `json:"backend"`
	SessionID        string           `json:"session_id"`
	Generation       uint64           `json:"generation"`
	Active           bool             `json:"active"`
	Training         bool             `json:"training"`
	RepCount         int              `json:"rep_count"`
	CurrentPhase     l4model.Phase    `json:"current_phase"`
	ExerciseType     string           `json:"exercise_type"`
	TypeConfidence   float64          `json:"type_confidence"`
	LastFormScore    float64          `json:"last_form_score"`
	AverageFormScore float64          `json:"average_form_score"`
	FormHistory      []float64        `json:"form_history"`
	LastFeedback     *l6form.Feedback `json:"last_feedback,omitempty"`
	Classifications  uint64           `json:"classifications"`
	FramesReceived   uint64           `json:"frames_received"`
	DroppedFrames    uint64           `json:"dropped_frames"`
	WindowLen        int              `json:"window_len"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Deps are the collaborators NewAnalyzer may wire in.
type Deps struct {
	// Model is required by the bilstm backend.
	Model   Model
	Trainer *training.Trainer
	Clock   timeutil.Clock
	Metrics *metrics.Manager
}

// NewAnalyzer builds the backend named by cfg.
func NewAnalyzer(cfg *config.TuningConfig, deps Deps) (Analyzer, error) {
	switch cfg.GetBackend() {
	case config.BackendBiLSTM:
		if deps.Model == nil {
			return nil, fmt.Errorf("backend %q requires a model", config.BackendBiLSTM)
		}
		return NewSession(SessionConfigFromTuning(cfg, deps)), nil
	case config.BackendSimulated:
		return NewSimulated(SimulatedConfig{
			Interval:            cfg.GetSimulatedInterval(),
			PollInterval:        cfg.GetMetricsPollInterval(),
			FeedbackInterval:    cfg.GetFeedbackInterval(),
			FormHistoryCapacity: cfg.GetFormHistoryCapacity(),
			Seed:                cfg.GetSeed(),
			Clock:               deps.Clock,
			Metrics:             deps.Metrics,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.GetBackend())
	}
}
