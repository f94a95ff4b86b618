package sink

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/internal/config"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// messageWriter is the part of kafka.Writer the sink uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes actions to a Kafka topic, keyed by source transaction
// so all actions for one deposit land on the same partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
	logger *zap.Logger
}

// NewKafkaSink creates a synchronous Kafka writer for cfg
func NewKafkaSink(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no Kafka brokers configured", ErrInvalidConfiguration)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: no Kafka topic configured", ErrInvalidConfiguration)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return newKafkaSink(writer, cfg.Topic, logger), nil
}

func newKafkaSink(writer messageWriter, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		writer: writer,
		topic:  topic,
		logger: logger.Named("kafka"),
	}
}

// Dispatch writes the action and waits for the broker acknowledgement
func (s *KafkaSink) Dispatch(ctx context.Context, action bridge.Action) error {
	if s.closed.Load() {
		return ErrClosed
	}

	value, err := encodeAction(action)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(action.SourceTxID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "idempotency_key", Value: []byte(action.Key())},
		},
	}
	if action.SessionID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "session_id", Value: []byte(action.SessionID)})
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write action to topic %s: %w", s.topic, err)
	}

	s.logger.Debug("action published",
		zap.String("topic", s.topic),
		zap.String("source_tx", action.SourceTxID),
	)
	return nil
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.writer.Close()
}
