// Package sink delivers bridge actions to the destination side. None of the
// sinks sign or submit destination transactions; they publish the required
// action for a relayer or operator to carry out.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/internal/config"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// Sink types accepted in configuration
const (
	TypeLog       = "log"
	TypeKafka     = "kafka"
	TypeRedis     = "redis"
	TypeWebSocket = "websocket"
)

var (
	// ErrClosed is returned when dispatching to a closed sink
	ErrClosed = errors.New("sink closed")

	// ErrInvalidConfiguration is returned for unusable sink settings
	ErrInvalidConfiguration = errors.New("invalid sink configuration")
)

// Sink receives actions required on the destination chain
type Sink interface {
	Dispatch(ctx context.Context, action bridge.Action) error
	Close() error
}

// New builds the sinks enabled in cfg. Several sinks are combined with
// NewMulti. hub is required when the websocket sink is enabled.
func New(cfg *config.SinkConfig, hub *Hub, logger *zap.Logger) (Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	for _, t := range cfg.Types {
		var (
			s   Sink
			err error
		)
		switch t {
		case TypeLog:
			s = NewLogSink(logger)
		case TypeKafka:
			s, err = NewKafkaSink(&cfg.Kafka, logger)
		case TypeRedis:
			s, err = NewRedisSink(&cfg.Redis, logger)
		case TypeWebSocket:
			if hub == nil {
				err = fmt.Errorf("%w: websocket sink requires a hub", ErrInvalidConfiguration)
			} else {
				s = NewWebSocketSink(hub)
			}
		default:
			err = fmt.Errorf("%w: unknown sink type %q", ErrInvalidConfiguration, t)
		}
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		return nil, fmt.Errorf("%w: no sink configured", ErrInvalidConfiguration)
	case 1:
		return sinks[0], nil
	default:
		return NewMulti(sinks...), nil
	}
}

// encodeAction is the wire format shared by the message bus sinks
func encodeAction(action bridge.Action) ([]byte, error) {
	data, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action: %w", err)
	}
	return data, nil
}
