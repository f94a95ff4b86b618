package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

// LogSink writes each action as a simulation record. It performs no
// destination-side call.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("simulation")}
}

// Dispatch logs the action
func (s *LogSink) Dispatch(ctx context.Context, action bridge.Action) error {
	s.logger.Info("[SIMULATION] Action required: unlock funds on destination chain",
		zap.String("recipient", action.Recipient.Hex()),
		zap.Stringer("amount", action.Amount),
		zap.String("source_tx", action.SourceTxID),
		zap.Stringer("nonce", action.Nonce),
		zap.Stringer("destination_chain_id", action.DestinationChainID),
		zap.Uint64("source_height", action.SourceHeight),
		zap.String("idempotency_key", action.Key()),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
