package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/training"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "physio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MigratesAndAppliesPragmas(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	// re-running migrations is a no-op
	assert.NoError(t, db.MigrateUp())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physio.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewModelStore(db.DB).SaveModel(context.Background(), &Blob{Key: "k", Weights: []byte{1}}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	b, err := NewModelStore(db.DB).LoadModel(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b.Weights)
}

func TestModelStore_SaveLoad(t *testing.T) {
	db := openTestDB(t)
	store := NewModelStore(db.DB)
	ctx := context.Background()

	_, err := store.LoadModel(ctx, "physio-bilstm-model")
	assert.True(t, errors.Is(err, l4model.ErrBlobNotFound))

	arch := l4model.DefaultArchitecture()
	created := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, store.SaveModel(ctx, &Blob{
		Key:             "physio-bilstm-model",
		Architecture:    arch,
		Weights:         []byte("weights-v1"),
		ProducerVersion: "dev (abc)",
		CreatedAt:       created,
		UpdatedAt:       created,
	}))

	got, err := store.LoadModel(ctx, "physio-bilstm-model")
	require.NoError(t, err)
	assert.Equal(t, arch, got.Architecture)
	assert.Equal(t, []byte("weights-v1"), got.Weights)
	assert.Equal(t, "dev (abc)", got.ProducerVersion)
	assert.True(t, got.CreatedAt.Equal(created))

	later := created.Add(time.Hour)
	require.NoError(t, store.SaveModel(ctx, &Blob{
		Key:          "physio-bilstm-model",
		Architecture: arch,
		Weights:      []byte("weights-v2"),
		CreatedAt:    later,
		UpdatedAt:    later,
	}))
	got, err = store.LoadModel(ctx, "physio-bilstm-model")
	require.NoError(t, err)
	assert.Equal(t, []byte("weights-v2"), got.Weights)
	assert.True(t, got.CreatedAt.Equal(created), "created_at preserved on replace")
	assert.True(t, got.UpdatedAt.Equal(later))

	require.NoError(t, store.DeleteModel(ctx, "physio-bilstm-model"))
	_, err = store.LoadModel(ctx, "physio-bilstm-model")
	assert.True(t, errors.Is(err, l4model.ErrBlobNotFound))
}

func TestModelStore_BacksHandle(t *testing.T) {
	db := openTestDB(t)
	store := NewModelStore(db.DB)
	arch := l4model.Architecture{SequenceLength: 3, FeatureDim: 2, Hidden1: 2, Hidden2: 2, Dense: 2,
		NumTypes: len(l4model.ExerciseTypes), NumPhases: l4model.NumPhases}

	h, err := l4model.NewHandle(l4model.HandleConfig{Key: "handle-test", Architecture: arch, Store: store, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, h.Initialize(context.Background()))

	blob, err := store.LoadModel(context.Background(), "handle-test")
	require.NoError(t, err)
	_, err = l4model.DecodeWeights(arch, blob.Weights)
	assert.NoError(t, err)

	// a corrupted row surfaces as ModelInitError on the next handle
	_, err = db.Exec(`UPDATE model_blobs SET weights = ? WHERE model_key = ?`, []byte("{"), "handle-test")
	require.NoError(t, err)
	h2, err := l4model.NewHandle(l4model.HandleConfig{Key: "handle-test", Architecture: arch, Store: store, Seed: 1})
	require.NoError(t, err)
	var ierr *l4model.ModelInitError
	assert.True(t, errors.As(h2.Initialize(context.Background()), &ierr))
	assert.True(t, h2.Ready())
}

func TestTrainingRunStore_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	store := NewTrainingRunStore(db.DB)
	ctx := context.Background()

	run := &TrainingRun{
		RunID:       "run-1",
		ModelKey:    "m",
		Status:      training.StatusRunning,
		SampleCount: 40,
		Epochs:      2,
		StartedAt:   100,
	}
	require.NoError(t, store.InsertRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, training.StatusRunning, got.Status)
	assert.Zero(t, got.FinishedAt)
	assert.Nil(t, got.History)

	run.Status = training.StatusCompleted
	run.FinishedAt = 200
	run.FinalLoss = 0.5
	run.TypeAccuracy = 0.9
	run.History = l4model.History{{Epoch: 1, Loss: 1}, {Epoch: 2, Loss: 0.5}}
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = store.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	err = store.UpdateRun(ctx, &TrainingRun{RunID: "missing"})
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestTrainingRunStore_List(t *testing.T) {
	db := openTestDB(t)
	store := NewTrainingRunStore(db.DB)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "a"} {
		require.NoError(t, store.InsertRun(ctx, &TrainingRun{
			RunID:     string(rune('x' + i)),
			ModelKey:  key,
			Status:    training.StatusFailed,
			Error:     "boom",
			StartedAt: int64(i),
		}))
	}

	all, err := store.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "z", all[0].RunID, "newest first")

	onlyA, err := store.ListRuns(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	limited, err := store.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
