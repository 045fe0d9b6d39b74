package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests and ephemeral runs.
// Documents round-trip through JSON so it exercises the same encode/decode
// path as the SQLite implementation.
type MemoryRepository struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]json.RawMessage)}
}

// Load decodes the document at key into v.
func (r *MemoryRepository) Load(_ context.Context, key string, v any) (bool, error) {
	r.mu.Lock()
	raw, ok := r.docs[key]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		r.mu.Lock()
		delete(r.docs, key)
		r.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Save encodes v and stores it under key.
func (r *MemoryRepository) Save(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document %q: %w", key, err)
	}
	r.mu.Lock()
	r.docs[key] = raw
	r.mu.Unlock()
	return nil
}

// Delete removes the document at key.
func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.docs, key)
	r.mu.Unlock()
	return nil
}

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }

// Corrupt overwrites the document at key with unparseable bytes.
// Test helper for the corrupt-state recovery path.
func (r *MemoryRepository) Corrupt(key string) {
	r.mu.Lock()
	r.docs[key] = json.RawMessage("{not json")
	r.mu.Unlock()
}
