package hints

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrMiss indicates no live hint exists for the key.
	ErrMiss = errors.New("hint miss")

	// ErrInvalidHint indicates a stored hint could not be decoded.
	ErrInvalidHint = errors.New("invalid hint")
)

// Store persists hints.
type Store interface {
	// Get returns the live hint for key, or ErrMiss.
	Get(ctx context.Context, key Key) (*Hint, error)

	// Set stores a hint until its expiry. Expired hints are not stored.
	Set(ctx context.Context, key Key, hint *Hint) error

	// Delete removes a hint.
	Delete(ctx context.Context, key Key) error
}

// MemoryStore keeps hints in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	hints map[string]Hint
	now   func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hints: make(map[string]Hint),
		now:   time.Now,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (*Hint, error) {
	m.mu.RLock()
	hint, ok := m.hints[key.String()]
	m.mu.RUnlock()

	if !ok || hint.IsExpired(m.now()) {
		hintMisses.WithLabelValues(storeMemory).Inc()
		return nil, ErrMiss
	}

	hintHits.WithLabelValues(storeMemory).Inc()
	return &hint, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key Key, hint *Hint) error {
	if hint == nil {
		return errors.New("hint cannot be nil")
	}
	if hint.IsExpired(m.now()) {
		return nil
	}

	m.mu.Lock()
	m.hints[key.String()] = *hint
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.hints, key.String())
	m.mu.Unlock()
	return nil
}
