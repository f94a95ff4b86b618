package handler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/bridge-listener/dedup"
	"github.com/0xmhha/bridge-listener/internal/testutil"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

var destination = big.NewInt(80001)

type recordingSink struct {
	mu      sync.Mutex
	actions []bridge.Action
	err     error
	panic   bool
}

func (s *recordingSink) Dispatch(ctx context.Context, action bridge.Action) error {
	if s.panic {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.actions = append(s.actions, action)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

func newTestHandler(t *testing.T, sink ActionSink) (*Handler, *dedup.Filter, *Metrics) {
	t.Helper()
	filter := dedup.NewFilter()
	metrics := NewMetrics(prometheus.NewRegistry())
	h, err := NewHandler(sink, filter, &Config{SessionID: "session-1"}, metrics, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return h, filter, metrics
}

func outcomeCount(m *Metrics, o bridge.Outcome) float64 {
	return promtestutil.ToFloat64(m.EventsTotal.WithLabelValues(o.String()))
}

func TestHandleDispatchOnceThenDuplicate(t *testing.T) {
	sink := &recordingSink{}
	h, _, m := newTestHandler(t, sink)

	e := &bridge.Event{
		SourceTxID:         "tx1",
		DestinationChainID: big.NewInt(80001),
		Recipient:          testutil.BridgeContract,
		Amount:             big.NewInt(5),
		Nonce:              big.NewInt(1),
	}

	assert.Equal(t, bridge.OutcomeDispatched, h.Handle(context.Background(), e, destination))
	assert.Equal(t, bridge.OutcomeSkippedDuplicate, h.Handle(context.Background(), e, destination))

	require.Equal(t, 1, sink.count())
	got := sink.actions[0]
	assert.Equal(t, "tx1", got.SourceTxID)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, testutil.BridgeContract, got.Recipient)
	assert.Equal(t, int64(5), got.Amount.Int64())
	assert.Equal(t, int64(1), got.Nonce.Int64())
	assert.Equal(t, int64(80001), got.DestinationChainID.Int64())

	assert.Equal(t, 1.0, outcomeCount(m, bridge.OutcomeDispatched))
	assert.Equal(t, 1.0, outcomeCount(m, bridge.OutcomeSkippedDuplicate))
}

func TestHandleWrongChain(t *testing.T) {
	sink := &recordingSink{}
	h, filter, m := newTestHandler(t, sink)

	for _, chainID := range []int64{1, 137, 80002} {
		e := testutil.NewTestEvent(uint64(chainID), 100, chainID)
		assert.Equal(t, bridge.OutcomeSkippedWrongChain, h.Handle(context.Background(), e, destination))
	}

	assert.Equal(t, 0, sink.count())
	assert.Equal(t, 0, filter.Len(), "wrong-chain events must not reach the dedup filter")
	assert.Equal(t, 3.0, outcomeCount(m, bridge.OutcomeSkippedWrongChain))
}

func TestHandleWrongChainDoesNotConsumeDedup(t *testing.T) {
	sink := &recordingSink{}
	h, _, _ := newTestHandler(t, sink)

	e := testutil.NewTestEvent(1, 100, 80001)
	assert.Equal(t, bridge.OutcomeSkippedWrongChain, h.Handle(context.Background(), e, big.NewInt(1)))
	assert.Equal(t, bridge.OutcomeDispatched, h.Handle(context.Background(), e, destination))
}

func TestHandleSinkFailureForgets(t *testing.T) {
	sink := &recordingSink{err: errors.New("destination unavailable")}
	h, filter, m := newTestHandler(t, sink)

	e := testutil.NewTestEvent(1, 100, 80001)
	assert.Equal(t, bridge.OutcomeFailed, h.Handle(context.Background(), e, destination))
	assert.False(t, filter.Seen(e.SourceTxID))
	assert.Equal(t, 1.0, outcomeCount(m, bridge.OutcomeFailed))

	// Redelivery after the sink recovers is dispatched
	sink.err = nil
	assert.Equal(t, bridge.OutcomeDispatched, h.Handle(context.Background(), e, destination))
	assert.Equal(t, 1, sink.count())
}

func TestHandleRecoversPanic(t *testing.T) {
	sink := &recordingSink{panic: true}
	h, _, m := newTestHandler(t, sink)

	e := testutil.NewTestEvent(1, 100, 80001)
	assert.Equal(t, bridge.OutcomeFailed, h.Handle(context.Background(), e, destination))
	assert.Equal(t, bridge.OutcomeFailed, h.Handle(context.Background(), nil, destination))
	assert.Equal(t, 2.0, outcomeCount(m, bridge.OutcomeFailed))
}

func TestHandleBatch(t *testing.T) {
	sink := &recordingSink{}
	h, _, _ := newTestHandler(t, sink)

	e1 := testutil.NewTestEvent(1, 100, 80001)
	e2 := testutil.NewTestEvent(2, 100, 1)
	e3 := testutil.NewTestEvent(3, 101, 80001)

	res := h.HandleBatch(context.Background(), []*bridge.Event{e1, e2, e1, nil, e3}, destination)
	assert.Equal(t, BatchResult{Dispatched: 2, SkippedWrongChain: 1, SkippedDuplicate: 1, Failed: 1}, res)
	assert.Equal(t, 5, res.Total())

	require.Equal(t, 2, sink.count())
	assert.Equal(t, e1.SourceTxID, sink.actions[0].SourceTxID)
	assert.Equal(t, e3.SourceTxID, sink.actions[1].SourceTxID)
}

func TestNewHandler(t *testing.T) {
	_, err := NewHandler(nil, dedup.NewFilter(), nil, nil, nil)
	assert.Error(t, err)

	_, err = NewHandler(&recordingSink{}, nil, nil, nil, nil)
	assert.Error(t, err)

	h, err := NewHandler(&recordingSink{}, dedup.NewFilter(), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, h.SessionID(), 36)

	// Works without metrics
	assert.Equal(t, bridge.OutcomeDispatched, h.Handle(context.Background(), testutil.NewTestEvent(1, 1, 80001), destination))
}

func TestMetricsExposeAllOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	var series int
	for _, f := range families {
		if f.GetName() == "bridge_handler_events_total" {
			series = len(f.GetMetric())
		}
	}
	assert.Equal(t, len(bridge.Outcomes), series)
}
