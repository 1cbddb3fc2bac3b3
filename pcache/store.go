package pcache

import (
	"context"
	"sync"
)

// SnapshotStore persists opaque snapshot blobs by name
type SnapshotStore interface {
	// Get returns the blob stored under name, or ErrSnapshotNotFound
	Get(ctx context.Context, name string) ([]byte, error)
	// Put replaces the blob stored under name
	Put(ctx context.Context, name string, blob []byte) error
	Close() error
}

// MemoryStore keeps blobs in process memory
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[name]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *MemoryStore) Put(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[name] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
