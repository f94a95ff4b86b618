// Package checkpoint persists the listener's progress marker: the last
// source height whose events have all been handed to the handler.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

var (
	// ErrNotFound is returned when no checkpoint has been persisted yet
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupt is returned when the persisted checkpoint cannot be decoded
	ErrCorrupt = errors.New("checkpoint corrupt")

	// ErrClosed is returned when operating on a closed store
	ErrClosed = errors.New("checkpoint store closed")
)

// Store is durable storage for a single checkpoint value.
// Save fully overwrites the previous value; a crash during Save leaves either
// the old or the new value readable, never a partial one.
type Store interface {
	Load(ctx context.Context) (bridge.Checkpoint, error)
	Save(ctx context.Context, cp bridge.Checkpoint) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// Open creates the store for the named backend at path
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendPebble:
		return NewPebbleStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}

// record is the persisted form: {"last_processed_block": N}
type record struct {
	LastProcessedBlock *uint64 `json:"last_processed_block"`
}

func encode(cp bridge.Checkpoint) ([]byte, error) {
	h := cp.LastProcessedHeight
	return json.Marshal(record{LastProcessedBlock: &h})
}

func decode(data []byte) (bridge.Checkpoint, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return bridge.Checkpoint{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if rec.LastProcessedBlock == nil {
		return bridge.Checkpoint{}, fmt.Errorf("%w: missing last_processed_block", ErrCorrupt)
	}
	return bridge.Checkpoint{LastProcessedHeight: *rec.LastProcessedBlock}, nil
}
