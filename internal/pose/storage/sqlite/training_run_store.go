package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/training"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = training.ErrRunNotFound

// TrainingRunStore is the ledger of training attempts.
type TrainingRunStore struct {
	db *sql.DB
}

// NewTrainingRunStore creates a new TrainingRunStore.
func NewTrainingRunStore(db *sql.DB) *TrainingRunStore {
	return &TrainingRunStore{db: db}
}

const trainingRunColumns = `run_id, model_key, status, sample_count, epochs,
	final_loss, validation_loss, type_accuracy, phase_accuracy, error,
	history_json, started_at, finished_at`

// InsertRun records a new run.
func (s *TrainingRunStore) InsertRun(ctx context.Context, run *TrainingRun) error {
	history, err := encodeHistory(run.History)
	if err != nil {
		return err
	}
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO training_runs (`+trainingRunColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.ModelKey, string(run.Status), run.SampleCount, run.Epochs,
			run.FinalLoss, run.ValidationLoss, run.TypeAccuracy, run.PhaseAccuracy, run.Error,
			history, run.StartedAt, nullableNanos(run.FinishedAt),
		)
		return err
	})
}

// UpdateRun overwrites the mutable fields of an existing run.
func (s *TrainingRunStore) UpdateRun(ctx context.Context, run *TrainingRun) error {
	history, err := encodeHistory(run.History)
	if err != nil {
		return err
	}
	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE training_runs SET
				status = ?, sample_count = ?, epochs = ?, final_loss = ?, validation_loss = ?,
				type_accuracy = ?, phase_accuracy = ?, error = ?, history_json = ?, finished_at = ?
			WHERE run_id = ?`,
			string(run.Status), run.SampleCount, run.Epochs, run.FinalLoss, run.ValidationLoss,
			run.TypeAccuracy, run.PhaseAccuracy, run.Error, history, nullableNanos(run.FinishedAt),
			run.RunID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("update run %s: %w", run.RunID, ErrRunNotFound)
		}
		return nil
	})
}

// GetRun returns one run including its per-epoch history.
func (s *TrainingRunStore) GetRun(ctx context.Context, runID string) (*TrainingRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+trainingRunColumns+`
		FROM training_runs
		WHERE run_id = ?`, runID)
	run, err := scanTrainingRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first. An empty modelKey lists every
// model; limit <= 0 means 50.
func (s *TrainingRunStore) ListRuns(ctx context.Context, modelKey string, limit int) ([]*TrainingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+trainingRunColumns+`
		FROM training_runs
		WHERE (? = '' OR model_key = ?)
		ORDER BY started_at DESC
		LIMIT ?`, modelKey, modelKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer rows.Close()

	var runs []*TrainingRun
	for rows.Next() {
		run, err := scanTrainingRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrainingRun(row rowScanner) (*TrainingRun, error) {
	var (
		run        TrainingRun
		status     string
		history    sql.NullString
		finishedAt sql.NullInt64
	)
	err := row.Scan(
		&run.RunID, &run.ModelKey, &status, &run.SampleCount, &run.Epochs,
		&run.FinalLoss, &run.ValidationLoss, &run.TypeAccuracy, &run.PhaseAccuracy, &run.Error,
		&history, &run.StartedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan training run: %w", err)
	}
	run.Status = TrainingStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Int64
	}
	if history.Valid && history.String != "" {
		var h l4model.History
		if err := json.Unmarshal([]byte(history.String), &h); err != nil {
			return nil, fmt.Errorf("decode history of run %s: %w", run.RunID, err)
		}
		run.History = h
	}
	return &run, nil
}

func encodeHistory(h l4model.History) (interface{}, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

func nullableNanos(ns int64) interface{} {
	if ns == 0 {
		return nil
	}
	return ns
}
