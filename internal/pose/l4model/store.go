package l4model

import (
	"context"
	"sync"
	"time"
)

// Blob is the persisted form of a model: architecture plus encoded weights.
type Blob struct {
	Key             string
	Architecture    Architecture
	Weights         []byte
	ProducerVersion string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store persists model blobs under a fixed key.
type Store interface {
	// LoadModel returns ErrBlobNotFound when no blob exists for key.
	LoadModel(ctx context.Context, key string) (*Blob, error)
	// SaveModel inserts or replaces the blob for b.Key.
	SaveModel(ctx context.Context, b *Blob) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string]Blob
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]Blob)}
}

func (s *MemoryStore) LoadModel(_ context.Context, key string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	b.Weights = append([]byte(nil), b.Weights...)
	return &b, nil
}

func (s *MemoryStore) SaveModel(_ context.Context, b *Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	cp.Weights = append([]byte(nil), b.Weights...)
	if prev, ok := s.blobs[b.Key]; ok && !prev.CreatedAt.IsZero() {
		cp.CreatedAt = prev.CreatedAt
	}
	s.blobs[b.Key] = cp
	return nil
}
