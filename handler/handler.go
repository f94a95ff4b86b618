// Package handler validates deposit events and dispatches the resulting
// actions to the destination side.
package handler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/dedup"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// ActionSink receives actions for validated, non-duplicate events
type ActionSink interface {
	Dispatch(ctx context.Context, action bridge.Action) error
}

// Config holds handler configuration
type Config struct {
	// SessionID is stamped on every action; a random one is generated when empty
	SessionID string
}

// Handler applies chain validation and deduplication before dispatching
type Handler struct {
	sink      ActionSink
	filter    *dedup.Filter
	metrics   *Metrics
	sessionID string
	logger    *zap.Logger
}

// NewHandler creates a new Handler. A nil metrics disables instrumentation.
func NewHandler(sink ActionSink, filter *dedup.Filter, config *Config, metrics *Metrics, logger *zap.Logger) (*Handler, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if filter == nil {
		return nil, fmt.Errorf("filter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionID := ""
	if config != nil {
		sessionID = config.SessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &Handler{
		sink:      sink,
		filter:    filter,
		metrics:   metrics,
		sessionID: sessionID,
		logger:    logger,
	}, nil
}

// SessionID returns the id stamped on dispatched actions
func (h *Handler) SessionID() string {
	return h.sessionID
}

// Handle validates e against destinationChainID, filters duplicates and
// dispatches the action. A failed dispatch releases the event from the dedup
// filter so a later delivery can be retried. Panics are recovered and
// reported as OutcomeFailed.
func (h *Handler) Handle(ctx context.Context, e *bridge.Event, destinationChainID *big.Int) (outcome bridge.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic while handling event",
				zap.String("tx", txID(e)),
				zap.Any("panic", r),
			)
			outcome = bridge.OutcomeFailed
		}
		if h.metrics != nil {
			h.metrics.RecordOutcome(outcome)
		}
	}()

	if !e.IsForChain(destinationChainID) {
		h.logger.Debug("Skipping event for another chain",
			zap.String("tx", e.SourceTxID),
			zap.Stringer("destination_chain_id", e.DestinationChainID),
		)
		return bridge.OutcomeSkippedWrongChain
	}

	if !h.filter.Admit(e) {
		h.logger.Warn("Skipping duplicate event",
			zap.String("tx", e.SourceTxID),
			zap.Uint64("height", e.SourceHeight),
		)
		return bridge.OutcomeSkippedDuplicate
	}

	action := bridge.NewAction(e)
	action.SessionID = h.sessionID

	start := time.Now()
	err := h.sink.Dispatch(ctx, *action)
	if h.metrics != nil {
		h.metrics.ObserveDispatch(time.Since(start))
	}
	if err != nil {
		h.filter.Forget(e.SourceTxID)
		h.logger.Error("Failed to dispatch action",
			zap.String("tx", e.SourceTxID),
			zap.String("key", action.Key()),
			zap.Error(err),
		)
		return bridge.OutcomeFailed
	}

	return bridge.OutcomeDispatched
}

func txID(e *bridge.Event) string {
	if e == nil {
		return ""
	}
	return e.SourceTxID
}

// BatchResult counts the outcomes of a HandleBatch call
type BatchResult struct {
	Dispatched        int
	SkippedWrongChain int
	SkippedDuplicate  int
	Failed            int
}

// Add counts one outcome
func (r *BatchResult) Add(o bridge.Outcome) {
	switch o {
	case bridge.OutcomeDispatched:
		r.Dispatched++
	case bridge.OutcomeSkippedWrongChain:
		r.SkippedWrongChain++
	case bridge.OutcomeSkippedDuplicate:
		r.SkippedDuplicate++
	case bridge.OutcomeFailed:
		r.Failed++
	}
}

// Total returns the number of handled events
func (r BatchResult) Total() int {
	return r.Dispatched + r.SkippedWrongChain + r.SkippedDuplicate + r.Failed
}

// HandleBatch handles events in order. A failing event never stops the batch.
func (h *Handler) HandleBatch(ctx context.Context, events []*bridge.Event, destinationChainID *big.Int) BatchResult {
	var res BatchResult
	for _, e := range events {
		res.Add(h.Handle(ctx, e, destinationChainID))
	}
	return res
}
