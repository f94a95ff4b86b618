package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/0xmhha/bridge-listener/internal/constants"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// checkpointKey holds the big-endian encoded last processed height
var checkpointKey = []byte("/meta/listener/last_processed_block")

// PebbleStore keeps the checkpoint under a single key in a PebbleDB.
// Every Save is a synced write, which pebble applies atomically.
type PebbleStore struct {
	db     *pebble.DB
	closed atomic.Bool
}

// NewPebbleStore opens (or creates) a PebbleDB at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	cache := pebble.NewCache(int64(constants.DefaultCheckpointCacheSize) << 20)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

// Load reads the checkpoint key
func (s *PebbleStore) Load(ctx context.Context) (bridge.Checkpoint, error) {
	if s.closed.Load() {
		return bridge.Checkpoint{}, ErrClosed
	}

	value, closer, err := s.db.Get(checkpointKey)
	if err != nil {
		if err == pebble.ErrNotFound {
			return bridge.Checkpoint{}, ErrNotFound
		}
		return bridge.Checkpoint{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer closer.Close()

	if len(value) != 8 {
		return bridge.Checkpoint{}, fmt.Errorf("%w: invalid uint64 data length: %d", ErrCorrupt, len(value))
	}
	return bridge.Checkpoint{LastProcessedHeight: binary.BigEndian.Uint64(value)}, nil
}

// Save overwrites the checkpoint key with a synced write
func (s *PebbleStore) Save(ctx context.Context, cp bridge.Checkpoint) error {
	if s.closed.Load() {
		return ErrClosed
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, cp.LastProcessedHeight)

	if err := s.db.Set(checkpointKey, buf, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

// Close closes the database
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
