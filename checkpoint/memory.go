package checkpoint

import (
	"context"
	"sync"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	cp      bridge.Checkpoint
	has     bool
	saves   int
	saveErr error
	loadErr error
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreAt returns a store already holding height
func NewMemoryStoreAt(height uint64) *MemoryStore {
	return &MemoryStore{cp: bridge.Checkpoint{LastProcessedHeight: height}, has: true}
}

func (s *MemoryStore) Load(ctx context.Context) (bridge.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return bridge.Checkpoint{}, s.loadErr
	}
	if !s.has {
		return bridge.Checkpoint{}, ErrNotFound
	}
	return s.cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, cp bridge.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cp = cp
	s.has = true
	s.saves++
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Saves returns the number of successful saves
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// SetSaveErr makes Save fail with err, leaving the stored value untouched.
// A nil err restores normal behaviour.
func (s *MemoryStore) SetSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// SetLoadErr makes Load fail with err
func (s *MemoryStore) SetLoadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}
