package sink

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/internal/config"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// publisher is the part of the go-redis client the sink uses
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes actions on a Redis Pub/Sub channel
type RedisSink struct {
	client  publisher
	channel string
	closed  atomic.Bool
	logger  *zap.Logger
}

// NewRedisSink creates a Redis client for cfg. The connection is made lazily
// by go-redis on the first publish.
func NewRedisSink(cfg *config.RedisConfig, logger *zap.Logger) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: no Redis address configured", ErrInvalidConfiguration)
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("%w: no Redis channel configured", ErrInvalidConfiguration)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return newRedisSink(client, cfg.Channel, logger), nil
}

func newRedisSink(client publisher, channel string, logger *zap.Logger) *RedisSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{
		client:  client,
		channel: channel,
		logger:  logger.Named("redis"),
	}
}

// Dispatch publishes the JSON encoded action
func (s *RedisSink) Dispatch(ctx context.Context, action bridge.Action) error {
	if s.closed.Load() {
		return ErrClosed
	}

	data, err := encodeAction(action)
	if err != nil {
		return err
	}

	receivers, err := s.client.Publish(ctx, s.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish action to channel %s: %w", s.channel, err)
	}
	if receivers == 0 {
		s.logger.Warn("action published with no subscribers",
			zap.String("channel", s.channel),
			zap.String("source_tx", action.SourceTxID),
		)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
