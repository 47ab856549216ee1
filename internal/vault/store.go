package vault

import (
	"context"
	"sync"
)

// Store is the persistent key-value store holding encrypted blobs, keyed by
// networkID (primary vaults) or the redirect composite key. The codec treats
// it as an opaque durable map; the storage engine is the application's
// concern. Stores are not required to serialize concurrent writers; the
// link manager serializes all vault mutation in-process.
type Store interface {
	// Get returns the blob at key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Blob, error)
	// Put stores the blob at key, overwriting any existing blob.
	Put(ctx context.Context, key string, blob *Blob) error
	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory Store. It is the default for clients created
// without an explicit store, and the workhorse for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*Blob)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *blob
	return &cp, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, blob *Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *blob
	s.blobs[key] = &cp
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
