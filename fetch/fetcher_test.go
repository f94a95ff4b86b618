package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/bridge-listener/abi"
	"github.com/0xmhha/bridge-listener/client"
	"github.com/0xmhha/bridge-listener/internal/testutil"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// mockClient serves logs by block height and fails windows on demand
type mockClient struct {
	mu      sync.Mutex
	logs    []types.Log
	errs    map[bridge.Window][]error // consumed one per call
	calls   []bridge.Window
	lastSig common.Hash
}

func newMockClient(logs ...types.Log) *mockClient {
	return &mockClient{logs: logs, errs: make(map[bridge.Window][]error)}
}

func (m *mockClient) failWindow(w bridge.Window, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[w] = append(m.errs[w], errs...)
}

func (m *mockClient) GetEventLogs(ctx context.Context, contract common.Address, signature common.Hash, from, to uint64) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := bridge.Window{From: from, To: to}
	m.calls = append(m.calls, w)
	m.lastSig = signature

	if errs := m.errs[w]; len(errs) > 0 {
		m.errs[w] = errs[1:]
		return nil, errs[0]
	}

	var out []types.Log
	for _, l := range m.logs {
		if l.Address == contract && l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestFetcher(t *testing.T, c Client) *Fetcher {
	t.Helper()
	d, err := abi.NewDecoder("", "DepositInitiated")
	require.NoError(t, err)

	f, err := NewFetcher(c, d, &Config{
		Contract:   testutil.BridgeContract,
		ChunkSize:  100,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return f
}

func TestWindowsScenario(t *testing.T) {
	got := Windows(101, 250, 100)
	assert.Equal(t, []bridge.Window{{From: 101, To: 200}, {From: 201, To: 250}}, got)
}

func TestWindowsEdgeCases(t *testing.T) {
	tests := []struct {
		name           string
		from, to, size uint64
		want           []bridge.Window
	}{
		{"empty range", 11, 10, 100, nil},
		{"zero width", 1, 10, 0, nil},
		{"single block", 5, 5, 100, []bridge.Window{{From: 5, To: 5}}},
		{"exact multiple", 1, 200, 100, []bridge.Window{{From: 1, To: 100}, {From: 101, To: 200}}},
		{"width one", 7, 9, 1, []bridge.Window{{From: 7, To: 7}, {From: 8, To: 8}, {From: 9, To: 9}}},
		{"from zero", 0, 99, 100, []bridge.Window{{From: 0, To: 99}}},
		{"top of range", math.MaxUint64 - 1, math.MaxUint64, 100, []bridge.Window{{From: math.MaxUint64 - 1, To: math.MaxUint64}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Windows(tt.from, tt.to, tt.size))
		})
	}
}

func TestWindowsExhaustiveAndContiguous(t *testing.T) {
	for from := uint64(0); from < 30; from++ {
		for to := from; to < from+60; to++ {
			for width := uint64(1); width <= 25; width++ {
				ws := Windows(from, to, width)
				require.NotEmpty(t, ws)

				assert.Equal(t, from, ws[0].From)
				assert.Equal(t, to, ws[len(ws)-1].To)

				var covered uint64
				for i, w := range ws {
					require.LessOrEqual(t, w.From, w.To)
					require.LessOrEqual(t, w.Size(), width, "window %s wider than %d", w, width)
					if i > 0 {
						require.Equal(t, ws[i-1].To+1, w.From, "windows %s and %s not contiguous", ws[i-1], w)
					}
					covered += w.Size()
				}
				require.Equal(t, to-from+1, covered)
			}
		}
	}
}

func TestFetchWindowEvents(t *testing.T) {
	e1 := testutil.NewTestEvent(1, 120, 80001)
	e2 := testutil.NewTestEvent(2, 180, 80001)
	outside := testutil.NewTestEvent(3, 230, 80001)

	mc := newMockClient(testutil.NewTestLog(t, e1), testutil.NewTestLog(t, e2), testutil.NewTestLog(t, outside))
	f := newTestFetcher(t, mc)

	res := f.FetchWindow(context.Background(), bridge.Window{From: 101, To: 200})
	require.NoError(t, res.Err)
	assert.Equal(t, StatusEvents, res.Status)
	assert.True(t, res.OK())
	require.Len(t, res.Events, 2)
	assert.Equal(t, e1.SourceTxID, res.Events[0].SourceTxID)
	assert.Equal(t, e2.SourceTxID, res.Events[1].SourceTxID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, f.decoder.EventSignature(), mc.lastSig)
}

func TestFetchWindowEmpty(t *testing.T) {
	f := newTestFetcher(t, newMockClient())

	res := f.FetchWindow(context.Background(), bridge.Window{From: 1, To: 100})
	assert.Equal(t, StatusEmpty, res.Status)
	assert.True(t, res.OK())
	assert.Empty(t, res.Events)
	assert.NoError(t, res.Err)
}

func TestFetchWindowFaultIsNotEmpty(t *testing.T) {
	mc := newMockClient()
	w := bridge.Window{From: 201, To: 250}
	rangeErr := fmt.Errorf("%w: header not found", client.ErrRangeUnavailable)
	mc.failWindow(w, rangeErr, rangeErr, rangeErr)
	f := newTestFetcher(t, mc)

	res := f.FetchWindow(context.Background(), w)
	assert.Equal(t, StatusFault, res.Status)
	assert.False(t, res.OK())
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, client.ErrRangeUnavailable))
	assert.Equal(t, 3, res.Attempts)
}

func TestFetchWindowRetriesTransientFault(t *testing.T) {
	e := testutil.NewTestEvent(1, 210, 80001)
	mc := newMockClient(testutil.NewTestLog(t, e))
	w := bridge.Window{From: 201, To: 250}
	mc.failWindow(w, fmt.Errorf("%w: i/o timeout", client.ErrTimeout))
	f := newTestFetcher(t, mc)

	res := f.FetchWindow(context.Background(), w)
	require.NoError(t, res.Err)
	assert.Equal(t, StatusEvents, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, res.Events, 1)
}

func TestFetchWindowDoesNotRetryPermanentFault(t *testing.T) {
	mc := newMockClient()
	w := bridge.Window{From: 1, To: 100}
	mc.failWindow(w, errors.New("invalid params"))
	f := newTestFetcher(t, mc)

	res := f.FetchWindow(context.Background(), w)
	assert.Equal(t, StatusFault, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestFetchWindowSkipsUndecodableLogs(t *testing.T) {
	good := testutil.NewTestEvent(1, 50, 80001)
	removed := testutil.NewTestLog(t, testutil.NewTestEvent(2, 60, 80001))
	removed.Removed = true

	mc := newMockClient(testutil.MalformedLog(t, 40), testutil.NewTestLog(t, good), removed)
	f := newTestFetcher(t, mc)

	res := f.FetchWindow(context.Background(), bridge.Window{From: 1, To: 100})
	require.NoError(t, res.Err)
	assert.Equal(t, StatusEvents, res.Status)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Events, 1)
	assert.Equal(t, good.SourceTxID, res.Events[0].SourceTxID)
}

func TestFetchWindowOnlyUndecodableIsEmpty(t *testing.T) {
	mc := newMockClient(testutil.MalformedLog(t, 40))
	f := newTestFetcher(t, mc)

	res := f.FetchWindow(context.Background(), bridge.Window{From: 1, To: 100})
	assert.Equal(t, StatusEmpty, res.Status)
	assert.Equal(t, 1, res.Skipped)
}

func TestFetchWindowCanceled(t *testing.T) {
	mc := newMockClient()
	w := bridge.Window{From: 1, To: 100}
	mc.failWindow(w, client.ErrConnectivity, client.ErrConnectivity, client.ErrConnectivity)

	d, err := abi.NewDecoder("", "DepositInitiated")
	require.NoError(t, err)
	f, err := NewFetcher(mc, d, &Config{Contract: testutil.BridgeContract, ChunkSize: 100, MaxRetries: 3, RetryDelay: time.Hour}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := f.FetchWindow(ctx, w)
	assert.Equal(t, StatusFault, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestFetchRange(t *testing.T) {
	e1 := testutil.NewTestEvent(1, 150, 80001)
	e2 := testutil.NewTestEvent(2, 240, 80001)
	mc := newMockClient(testutil.NewTestLog(t, e1), testutil.NewTestLog(t, e2))
	f := newTestFetcher(t, mc)

	events, err := f.FetchRange(context.Background(), 101, 250)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []bridge.Window{{From: 101, To: 200}, {From: 201, To: 250}}, mc.calls)
}

func TestFetchRangeStopsAtFault(t *testing.T) {
	e1 := testutil.NewTestEvent(1, 150, 80001)
	e2 := testutil.NewTestEvent(2, 240, 80001)
	mc := newMockClient(testutil.NewTestLog(t, e1), testutil.NewTestLog(t, e2))
	mc.failWindow(bridge.Window{From: 201, To: 300}, errors.New("boom"))
	f := newTestFetcher(t, mc)

	events, err := f.FetchRange(context.Background(), 101, 350)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWindowFault))
	require.Len(t, events, 1)
	assert.Equal(t, e1.SourceTxID, events[0].SourceTxID)
	assert.Equal(t, 2, mc.callCount())
}

func TestNewFetcherValidation(t *testing.T) {
	d, err := abi.NewDecoder("", "DepositInitiated")
	require.NoError(t, err)
	mc := newMockClient()

	_, err = NewFetcher(nil, d, &Config{ChunkSize: 1, MaxRetries: 1}, nil)
	assert.Error(t, err)
	_, err = NewFetcher(mc, nil, &Config{ChunkSize: 1, MaxRetries: 1}, nil)
	assert.Error(t, err)
	_, err = NewFetcher(mc, d, nil, nil)
	assert.Error(t, err)
	_, err = NewFetcher(mc, d, &Config{ChunkSize: 0, MaxRetries: 1}, nil)
	assert.Error(t, err)
	_, err = NewFetcher(mc, d, &Config{ChunkSize: 1, MaxRetries: 0}, nil)
	assert.Error(t, err)
	_, err = NewFetcher(mc, d, &Config{ChunkSize: 1, MaxRetries: 1, RetryDelay: -time.Second}, nil)
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "events", StatusEvents.String())
	assert.Equal(t, "fault", StatusFault.String())
	assert.Equal(t, "unknown", Status(42).String())
}
