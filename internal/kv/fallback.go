package kv

import (
	"sync"

	"github.com/nebulachat/nebula/internal/log"
)

// Fallback wraps a durable Store and degrades to an in-memory overlay when
// the durable layer fails. Callers never see a storage error: the
// operation's effect stays observable in memory for the rest of the
// process, it just is not committed to disk. This mirrors the demo's
// localStorage policy; a server-side rework should fail the operation
// instead.
//
// A key that has degraded stays in the overlay: the overlay value shadows
// whatever the durable layer still holds, so reads remain coherent within
// the process.
type Fallback struct {
	primary Store
	logger  log.Logger

	mu      sync.Mutex
	overlay map[string][]byte
	deleted map[string]bool
}

// NewFallback wraps primary with in-memory degradation.
func NewFallback(primary Store, logger log.Logger) *Fallback {
	return &Fallback{
		primary: primary,
		logger:  logger,
		overlay: make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Get returns the overlay value when the key has degraded, otherwise the
// durable value. Durable read faults degrade to a miss.
func (f *Fallback) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	if f.deleted[key] {
		f.mu.Unlock()
		return nil, false, nil
	}
	if v, ok := f.overlay[key]; ok {
		cp := make([]byte, len(v))
		copy(cp, v)
		f.mu.Unlock()
		return cp, true, nil
	}
	f.mu.Unlock()

	data, ok, err := f.primary.Get(key)
	if err != nil {
		f.logger.Warn("durable read failed, treating as missing", "key", key, "error", err)
		return nil, false, nil
	}
	return data, ok, nil
}

// Set writes through to durable storage, keeping the value in memory when
// the write fails.
func (f *Fallback) Set(key string, value []byte) error {
	if err := f.primary.Set(key, value); err != nil {
		f.logger.Warn("durable write failed, keeping value in memory only", "key", key, "error", err)
		cp := make([]byte, len(value))
		copy(cp, value)
		f.mu.Lock()
		f.overlay[key] = cp
		delete(f.deleted, key)
		f.mu.Unlock()
		return nil
	}
	f.mu.Lock()
	delete(f.overlay, key)
	delete(f.deleted, key)
	f.mu.Unlock()
	return nil
}

// Delete removes the key, recording a tombstone when the durable delete
// fails so the stale durable value cannot resurface.
func (f *Fallback) Delete(key string) error {
	f.mu.Lock()
	delete(f.overlay, key)
	f.mu.Unlock()

	if err := f.primary.Delete(key); err != nil {
		f.logger.Warn("durable delete failed, masking key in memory", "key", key, "error", err)
		f.mu.Lock()
		f.deleted[key] = true
		f.mu.Unlock()
	}
	return nil
}
