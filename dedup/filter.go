// Package dedup tracks which source transactions have already been handed
// to the action sink during this process lifetime.
package dedup

import (
	"sync"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

// Filter is an unbounded in-memory set of admitted source transaction ids.
// It is not persisted; after a restart the destination side must treat
// Action.Key as an idempotency key.
type Filter struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFilter creates an empty filter
func NewFilter() *Filter {
	return &Filter{seen: make(map[string]struct{})}
}

// Admit records the event's SourceTxID and reports whether it was new.
// It returns true at most once per id until the id is forgotten.
func (f *Filter) Admit(e *bridge.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[e.SourceTxID]; ok {
		return false
	}
	f.seen[e.SourceTxID] = struct{}{}
	return true
}

// Seen reports whether id has been admitted
func (f *Filter) Seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[id]
	return ok
}

// Forget releases id so a later delivery of the same event is admitted again.
// Used when dispatch of an admitted event failed.
func (f *Filter) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, id)
}

// Len returns the number of admitted ids
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
