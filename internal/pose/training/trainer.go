package training

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/pose/l2features"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/timeutil"
)

// Status is the lifecycle state of a training run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one training attempt as recorded in the ledger.
type Run struct {
	RunID          string          `json:"run_id"`
	ModelKey       string          `json:"model_key"`
	Status         Status          `json:"status"`
	SampleCount    int             `json:"sample_count"`
	Epochs         int             `json:"epochs"`
	FinalLoss      float64         `json:"final_loss"`
	ValidationLoss float64         `json:"validation_loss"`
	TypeAccuracy   float64         `json:"type_accuracy"`
	PhaseAccuracy  float64         `json:"phase_accuracy"`
	Error          string          `json:"error,omitempty"`
	History        l4model.History `json:"history,omitempty"`
	StartedAt      int64           `json:"started_at"`
	FinishedAt     int64           `json:"finished_at,omitempty"`
}

// RunLedger records training attempts.
type RunLedger interface {
	InsertRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
}

// ModelTrainer is the exclusive-access fit entry point of a model handle.
type ModelTrainer interface {
	Key() string
	Train(ctx context.Context, samples []l4model.Sample, opts l4model.FitOptions) (l4model.History, error)
}

// Summary is returned to the caller of Train.
type Summary struct {
	RunID          string          `json:"run_id"`
	ModelKey       string          `json:"model_key"`
	Sequences      int             `json:"sequences"`
	Samples        int             `json:"samples"`
	SkippedFrames  int             `json:"skipped_frames"`
	PerLabel       map[string]int  `json:"per_label"`
	Epochs         int             `json:"epochs"`
	FinalLoss      float64         `json:"final_loss"`
	ValidationLoss float64         `json:"validation_loss"`
	TypeAccuracy   float64         `json:"type_accuracy"`
	PhaseAccuracy  float64         `json:"phase_accuracy"`
	Duration       time.Duration   `json:"duration_ns"`
	History        l4model.History `json:"history"`
}

// Config is the dataset and fit configuration of a Trainer.
type Config struct {
	Normalizer     *l2features.Normalizer
	SequenceLength int
	Stride         int
	Fit            l4model.FitOptions
}

// ConfigFromTuning derives a trainer Config from the tuning config.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Normalizer:     l2features.NewNormalizer(cfg.GetLandmarkCount(), cfg.GetIncludeZ()),
		SequenceLength: cfg.GetSequenceLength(),
		Stride:         cfg.GetWindowStride(),
		Fit: l4model.FitOptions{
			Epochs:          cfg.GetEpochs(),
			BatchSize:       cfg.GetBatchSize(),
			LearningRate:    cfg.GetLearningRate(),
			ValidationSplit: cfg.GetValidationSplit(),
			ClipNorm:        5,
			Seed:            cfg.GetSeed(),
		},
	}
}

// Trainer turns labeled sequences into a fitted, persisted model.
type Trainer struct {
	model   ModelTrainer
	ledger  RunLedger
	cfg     Config
	clock   timeutil.Clock
	metrics *metrics.Manager

	// OnEpoch, when set, observes per-epoch progress of every run.
	OnEpoch func(runID string, st l4model.EpochStats)
}

// NewTrainer returns a Trainer. ledger and m may be nil.
func NewTrainer(model ModelTrainer, ledger RunLedger, cfg Config, clock timeutil.Clock, m *metrics.Manager) *Trainer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Trainer{model: model, ledger: ledger, cfg: cfg, clock: clock, metrics: m}
}

// Train builds the dataset, fits the model and records the run. A
// *TrainingDataError is returned for unusable input; the model is untouched
// in that case and on any fit or persistence failure.
func (t *Trainer) Train(ctx context.Context, seqs []LabeledSequence) (*Summary, error) {
	start := t.clock.Now()
	run := &Run{
		RunID:     uuid.New().String(),
		ModelKey:  t.model.Key(),
		Status:    StatusRunning,
		Epochs:    t.cfg.Fit.Epochs,
		StartedAt: start.UnixNano(),
	}

	samples, stats, err := BuildDataset(seqs, DatasetOptions{
		Normalizer:     t.cfg.Normalizer,
		SequenceLength: t.cfg.SequenceLength,
		Stride:         t.cfg.Stride,
	})
	run.SampleCount = len(samples)
	if err != nil {
		t.finish(ctx, run, nil, err, start, true)
		return nil, err
	}
	diagf("run %s: %d sequences -> %d windows (%d frames skipped)", run.RunID, stats.Sequences, stats.Windows, stats.SkippedFrames)

	if t.ledger != nil {
		if lerr := t.ledger.InsertRun(ctx, run); lerr != nil {
			opsf("run %s: failed to record start: %v", run.RunID, lerr)
		}
	}

	opts := t.cfg.Fit
	userHook := opts.OnEpoch
	opts.OnEpoch = func(st l4model.EpochStats) {
		if userHook != nil {
			userHook(st)
		}
		if t.OnEpoch != nil {
			t.OnEpoch(run.RunID, st)
		}
	}

	t.metrics.TrainingStarted()
	history, err := t.model.Train(ctx, samples, opts)
	if err != nil {
		t.finish(ctx, run, history, err, start, false)
		return nil, err
	}
	t.finish(ctx, run, history, nil, start, false)

	final := history.Final()
	return &Summary{
		RunID:          run.RunID,
		ModelKey:       run.ModelKey,
		Sequences:      stats.Sequences,
		Samples:        len(samples),
		SkippedFrames:  stats.SkippedFrames,
		PerLabel:       stats.PerLabel,
		Epochs:         len(history),
		FinalLoss:      final.Loss,
		ValidationLoss: final.ValLoss,
		TypeAccuracy:   final.TypeAccuracy,
		PhaseAccuracy:  final.PhaseAccuracy,
		Duration:       t.clock.Since(start),
		History:        history,
	}, nil
}

// finish closes out the run in the ledger. Ledger failures are logged and do
// not change the training outcome.
func (t *Trainer) finish(ctx context.Context, run *Run, history l4model.History, err error, start time.Time, insert bool) {
	run.History = history
	run.FinishedAt = t.clock.Now().UnixNano()
	if len(history) > 0 {
		final := history.Final()
		run.Epochs = len(history)
		run.FinalLoss = final.Loss
		run.ValidationLoss = final.ValLoss
		run.TypeAccuracy = final.TypeAccuracy
		run.PhaseAccuracy = final.PhaseAccuracy
	}
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		var derr *TrainingDataError
		if errors.As(err, &derr) {
			diagf("run %s: rejected training data: %v", run.RunID, err)
		} else {
			opsf("run %s: training failed: %v", run.RunID, err)
		}
	} else {
		run.Status = StatusCompleted
		diagf("run %s: completed %d epochs, loss %.4f", run.RunID, run.Epochs, run.FinalLoss)
	}
	switch {
	case insert || errors.Is(err, l4model.ErrTrainingInProgress):
		t.metrics.TrainingRejected()
	default:
		t.metrics.TrainingFinished(string(run.Status), t.clock.Since(start))
	}

	if t.ledger == nil {
		return
	}
	// Record even when the caller's context is already cancelled.
	lctx := context.WithoutCancel(ctx)
	var lerr error
	if insert {
		lerr = t.ledger.InsertRun(lctx, run)
	} else {
		lerr = t.ledger.UpdateRun(lctx, run)
	}
	if lerr != nil {
		opsf("run %s: failed to record outcome: %v", run.RunID, lerr)
	}
}
