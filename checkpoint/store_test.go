package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "listener_state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 200}))
	cp, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), cp.LastProcessedHeight)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_processed_block": 200}`, string(data))

	// Overwrite and reopen
	require.NoError(t, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 250}))
	s2, err := NewFileStore(path)
	require.NoError(t, err)
	cp, err = s2.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), cp.LastProcessedHeight)
}

func TestFileStoreReadsExistingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listener_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_processed_block": 150}`), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	cp, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(150), cp.LastProcessedHeight)
}

func TestFileStoreCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"last_processed_bl`},
		{"missing field", `{"height": 10}`},
		{"wrong type", `{"last_processed_block": "ten"}`},
		{"negative", `{"last_processed_block": -1}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "listener_state.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			s, err := NewFileStore(path)
			require.NoError(t, err)

			_, err = s.Load(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
		})
	}
}

func TestFileStoreFailedWriteKeepsPreviousValue(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "listener_state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 100}))

	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	err = s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 200})
	require.Error(t, err)

	cp, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cp.LastProcessedHeight)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "listener_state.json"))
	require.NoError(t, err)

	for h := uint64(1); h <= 5; h++ {
		require.NoError(t, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: h}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreClosed(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "cp.json"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Load(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(s.Save(context.Background(), bridge.Checkpoint{}), ErrClosed))
}

func TestNewFileStoreEmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.db")

	s, err := NewPebbleStore(path)
	require.NoError(t, err)

	_, err = s.Load(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 12345}))
	cp, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), cp.LastProcessedHeight)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Load(ctx)
	assert.True(t, errors.Is(err, ErrClosed))

	// Value survives reopen
	s, err = NewPebbleStore(path)
	require.NoError(t, err)
	defer s.Close()
	cp, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), cp.LastProcessedHeight)
}

func TestPebbleStoreCorrupt(t *testing.T) {
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.Set(checkpointKey, []byte{0x01, 0x02}, nil))

	_, err = s.Load(context.Background())
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Load(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 7}))
	assert.Equal(t, 1, s.Saves())

	boom := errors.New("disk full")
	s.SetSaveErr(boom)
	assert.Equal(t, boom, s.Save(ctx, bridge.Checkpoint{LastProcessedHeight: 8}))
	cp, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cp.LastProcessedHeight)
	assert.Equal(t, 1, s.Saves())

	s.SetLoadErr(boom)
	_, err = s.Load(ctx)
	assert.Equal(t, boom, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendFile, filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(BackendPebble, filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	assert.IsType(t, &PebbleStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("etcd", "x")
	assert.Error(t, err)
}
