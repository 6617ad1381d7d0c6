package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/physio.track/internal/pose/l4model"
)

// ModelStore persists model blobs keyed by model key.
type ModelStore struct {
	db *sql.DB
}

// NewModelStore creates a new ModelStore.
func NewModelStore(db *sql.DB) *ModelStore {
	return &ModelStore{db: db}
}

// LoadModel returns the blob for key, or l4model.ErrBlobNotFound.
func (s *ModelStore) LoadModel(ctx context.Context, key string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT model_key, architecture_json, weights, producer_version, created_at, updated_at
		FROM model_blobs
		WHERE model_key = ?`, key)

	var (
		b                    Blob
		archJSON             string
		createdAt, updatedAt int64
	)
	err := row.Scan(&b.Key, &archJSON, &b.Weights, &b.ProducerVersion, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, l4model.ErrBlobNotFound
		}
		return nil, fmt.Errorf("scan model blob: %w", err)
	}
	if err := json.Unmarshal([]byte(archJSON), &b.Architecture); err != nil {
		return nil, fmt.Errorf("decode architecture of %s: %w", key, err)
	}
	b.CreatedAt = time.Unix(0, createdAt).UTC()
	b.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &b, nil
}

// SaveModel inserts or replaces the blob for b.Key. The original created_at
// is preserved on replace.
func (s *ModelStore) SaveModel(ctx context.Context, b *Blob) error {
	archJSON, err := json.Marshal(b.Architecture)
	if err != nil {
		return fmt.Errorf("encode architecture: %w", err)
	}
	now := time.Now()
	created, updated := b.CreatedAt, b.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO model_blobs (
				model_key, architecture_json, weights, producer_version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(model_key) DO UPDATE SET
				architecture_json = excluded.architecture_json,
				weights           = excluded.weights,
				producer_version  = excluded.producer_version,
				updated_at        = excluded.updated_at`,
			b.Key, string(archJSON), b.Weights, b.ProducerVersion, created.UnixNano(), updated.UnixNano(),
		)
		return err
	})
}

// DeleteModel removes the blob for key. Deleting a missing key is not an error.
func (s *ModelStore) DeleteModel(ctx context.Context, key string) error {
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM model_blobs WHERE model_key = ?`, key)
		return err
	})
}
