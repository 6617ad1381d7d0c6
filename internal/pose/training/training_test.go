package training

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l2features"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/timeutil"
)

const testL = 5

func testArch() l4model.Architecture {
	return l4model.Architecture{
		SequenceLength: testL,
		FeatureDim:     4,
		Hidden1:        3,
		Hidden2:        2,
		Dense:          4,
		NumTypes:       len(l4model.ExerciseTypes),
		NumPhases:      l4model.NumPhases,
	}
}

func testConfig() Config {
	return Config{
		Normalizer:     l2features.NewNormalizer(2, false),
		SequenceLength: testL,
		Stride:         1,
		Fit:            l4model.FitOptions{Epochs: 3, BatchSize: 4, LearningRate: 0.01, Seed: 1},
	}
}

// frame returns a two-landmark frame whose shape varies with i.
func frame(i int) l1landmarks.PoseFrame {
	return l1landmarks.PoseFrame{
		TimestampMs: int64(i) * 33,
		Landmarks: []l1landmarks.Landmark{
			{X: 0.2, Y: 0.2},
			{X: 0.4 + 0.01*float64(i%7), Y: 0.6},
		},
	}
}

func sequence(exercise string, n int, quality float64) LabeledSequence {
	seq := LabeledSequence{ExerciseType: exercise, QualityScore: quality}
	for i := 0; i < n; i++ {
		seq.Frames = append(seq.Frames, frame(i))
		p := l4model.PhaseDown
		if (i/3)%2 == 1 {
			p = l4model.PhaseUp
		}
		seq.Phases = append(seq.Phases, p)
	}
	return seq
}

func TestBuildDataset_WindowsAndLabels(t *testing.T) {
	seq := sequence("squat", 12, 80)
	samples, stats, err := BuildDataset([]LabeledSequence{seq}, DatasetOptions{
		Normalizer:     l2features.NewNormalizer(2, false),
		SequenceLength: testL,
	})
	require.NoError(t, err)
	require.Len(t, samples, 8)
	assert.Equal(t, 8, stats.Windows)
	assert.Equal(t, 8, stats.PerLabel["squat"])

	first := samples[0]
	r, c := first.Steps.Dims()
	assert.Equal(t, testL, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, l4model.ExerciseIndex("squat"), first.ExerciseType)
	assert.InDelta(t, 0.8, first.Quality, 1e-12)
	// labeled with the newest frame's phase (frame 4)
	assert.Equal(t, seq.Phases[4], first.Phase)
	assert.Equal(t, seq.Phases[11], samples[7].Phase)

	// the window rows are exactly what the live normalizer produces
	want, err := l2features.Normalize(seq.Frames[4], false)
	require.NoError(t, err)
	assert.Equal(t, want, mat.Row(nil, testL-1, first.Steps))
}

func TestBuildDataset_Stride(t *testing.T) {
	samples, _, err := BuildDataset([]LabeledSequence{sequence("squat", 12, 50)}, DatasetOptions{
		Normalizer:     l2features.NewNormalizer(2, false),
		SequenceLength: testL,
		Stride:         3,
	})
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestBuildDataset_SkipsBadFrames(t *testing.T) {
	seq := sequence("lunges", 8, 50)
	seq.Frames[2] = l1landmarks.PoseFrame{TimestampMs: 66}
	samples, stats, err := BuildDataset([]LabeledSequence{seq}, DatasetOptions{
		Normalizer:     l2features.NewNormalizer(2, false),
		SequenceLength: testL,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedFrames)
	assert.Len(t, samples, 3)
}

func TestBuildDataset_Errors(t *testing.T) {
	opts := DatasetOptions{Normalizer: l2features.NewNormalizer(2, false), SequenceLength: testL}

	mismatch := sequence("squat", 6, 50)
	mismatch.Phases = mismatch.Phases[:3]
	badQuality := sequence("squat", 6, 120)
	badPhase := sequence("squat", 6, 50)
	badPhase.Phases[1] = l4model.Phase(8)

	tests := []struct {
		name string
		seqs []LabeledSequence
		want error
	}{
		{"no sequences", nil, ErrNoSequences},
		{"unknown exercise", []LabeledSequence{sequence("yoga", 6, 50)}, ErrUnknownExercise},
		{"phase count mismatch", []LabeledSequence{mismatch}, ErrMalformedSequence},
		{"quality out of range", []LabeledSequence{badQuality}, ErrMalformedSequence},
		{"invalid phase", []LabeledSequence{badPhase}, ErrMalformedSequence},
		{"label without a full window", []LabeledSequence{sequence("squat", 6, 50), sequence("plank", 4, 50)}, ErrInsufficientWindows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildDataset(tt.seqs, opts)
			var derr *TrainingDataError
			require.True(t, errors.As(err, &derr), "got %v", err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.NotEmpty(t, derr.Error())
		})
	}
}

type fakeLedger struct {
	mu      sync.Mutex
	inserts []Run
	updates []Run
}

func (l *fakeLedger) InsertRun(_ context.Context, r *Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inserts = append(l.inserts, *r)
	return nil
}

func (l *fakeLedger) UpdateRun(_ context.Context, r *Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, *r)
	return nil
}

func newHandle(t *testing.T, store l4model.Store) *l4model.Handle {
	t.Helper()
	h, err := l4model.NewHandle(l4model.HandleConfig{Key: "train-test", Architecture: testArch(), Store: store, Seed: 3})
	require.NoError(t, err)
	require.NoError(t, h.Initialize(context.Background()))
	return h
}

func TestTrainer_Success(t *testing.T) {
	store := l4model.NewMemoryStore()
	h := newHandle(t, store)
	ledger := &fakeLedger{}
	clock := timeutil.NewMockClock(time.Unix(100, 0))

	var epochs []int
	tr := NewTrainer(h, ledger, testConfig(), clock, nil)
	tr.OnEpoch = func(runID string, st l4model.EpochStats) {
		assert.NotEmpty(t, runID)
		epochs = append(epochs, st.Epoch)
	}

	sum, err := tr.Train(context.Background(), []LabeledSequence{sequence("squat", 10, 90), sequence("push-up", 10, 40)})
	require.NoError(t, err)
	assert.Equal(t, "train-test", sum.ModelKey)
	assert.Equal(t, 2, sum.Sequences)
	assert.Equal(t, 12, sum.Samples)
	assert.Equal(t, 3, sum.Epochs)
	assert.Len(t, sum.History, 3)
	assert.Equal(t, []int{1, 2, 3}, epochs)

	require.Len(t, ledger.inserts, 1)
	require.Len(t, ledger.updates, 1)
	assert.Equal(t, StatusRunning, ledger.inserts[0].Status)
	assert.Equal(t, StatusCompleted, ledger.updates[0].Status)
	assert.Equal(t, sum.RunID, ledger.updates[0].RunID)
	assert.Equal(t, sum.FinalLoss, ledger.updates[0].FinalLoss)
	assert.Equal(t, int64(100e9), ledger.updates[0].StartedAt)
}

func TestTrainer_BadDataLeavesModelUntouched(t *testing.T) {
	store := l4model.NewMemoryStore()
	h := newHandle(t, store)
	before, err := store.LoadModel(context.Background(), "train-test")
	require.NoError(t, err)
	ledger := &fakeLedger{}

	tr := NewTrainer(h, ledger, testConfig(), nil, nil)
	_, err = tr.Train(context.Background(), []LabeledSequence{sequence("squat", 3, 50)})
	var derr *TrainingDataError
	require.True(t, errors.As(err, &derr))

	after, err := store.LoadModel(context.Background(), "train-test")
	require.NoError(t, err)
	assert.Equal(t, before.Weights, after.Weights)

	require.Len(t, ledger.inserts, 1)
	assert.Empty(t, ledger.updates)
	assert.Equal(t, StatusFailed, ledger.inserts[0].Status)
	assert.Contains(t, ledger.inserts[0].Error, "window")
}

type failingModel struct{ err error }

func (f failingModel) Key() string { return "failing" }
func (f failingModel) Train(context.Context, []l4model.Sample, l4model.FitOptions) (l4model.History, error) {
	return nil, f.err
}

func TestTrainer_FitFailureRecorded(t *testing.T) {
	ledger := &fakeLedger{}
	tr := NewTrainer(failingModel{err: l4model.ErrTrainingInProgress}, ledger, testConfig(), nil, nil)
	_, err := tr.Train(context.Background(), []LabeledSequence{sequence("squat", 6, 50)})
	assert.True(t, errors.Is(err, l4model.ErrTrainingInProgress))

	require.Len(t, ledger.updates, 1)
	assert.Equal(t, StatusFailed, ledger.updates[0].Status)
	assert.Equal(t, "failing", ledger.updates[0].ModelKey)
}

func TestConfigFromTuning(t *testing.T) {
	cfg := ConfigFromTuning(config.DefaultTuningConfig())
	assert.Equal(t, 30, cfg.SequenceLength)
	assert.Equal(t, 99, cfg.Normalizer.Dim())
	assert.Equal(t, 50, cfg.Fit.Epochs)
	assert.Equal(t, 32, cfg.Fit.BatchSize)
	assert.Equal(t, 0.2, cfg.Fit.ValidationSplit)
}

func TestWriteLossPlot(t *testing.T) {
	dir := t.TempDir()
	hist := l4model.History{
		{Epoch: 1, Loss: 3, TypeLoss: 2, PhaseLoss: 0.8, QualityLoss: 0.2, TypeAccuracy: 0.1, PhaseAccuracy: 0.3, ValSamples: 2, ValLoss: 3.1},
		{Epoch: 2, Loss: 2, TypeLoss: 1.4, PhaseLoss: 0.5, QualityLoss: 0.1, TypeAccuracy: 0.4, PhaseAccuracy: 0.6, ValSamples: 2, ValLoss: 2.4},
	}
	lossPath := filepath.Join(dir, "loss.png")
	accPath := filepath.Join(dir, "acc.png")
	require.NoError(t, WriteLossPlot(hist, "run", lossPath, accPath))

	for _, p := range []string{lossPath, accPath} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	assert.Error(t, WriteLossPlot(nil, "empty", lossPath, ""))
}
