package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/abi"
	"github.com/0xmhha/bridge-listener/client"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// Client defines the chain operations the fetcher needs
type Client interface {
	GetEventLogs(ctx context.Context, contract common.Address, signature common.Hash, from, to uint64) ([]types.Log, error)
}

// Config holds fetcher configuration
type Config struct {
	// Contract is the bridge contract whose logs are fetched
	Contract common.Address

	// ChunkSize is the maximum number of blocks per log query
	ChunkSize uint64

	// MaxRetries is the number of attempts per window for transient faults
	MaxRetries int

	// RetryDelay is the delay between attempts
	RetryDelay time.Duration
}

// Validate validates the fetcher configuration
func (c *Config) Validate() error {
	if c.ChunkSize == 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	return nil
}

// Status tags the outcome of fetching one window
type Status int

const (
	// StatusEmpty means the query succeeded and found nothing
	StatusEmpty Status = iota
	// StatusEvents means the query succeeded and produced events
	StatusEvents
	// StatusFault means the query failed; Result.Err holds the cause
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusEvents:
		return "events"
	case StatusFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a window fetch
type Result struct {
	Window bridge.Window
	Status Status
	Events []*bridge.Event

	// Skipped counts logs that could not be decoded
	Skipped int

	// Attempts is the number of queries issued for the window
	Attempts int

	Err error
}

// OK reports whether the window was fetched successfully
func (r Result) OK() bool {
	return r.Status != StatusFault
}

// Fetcher reads bridge events from the source chain in bounded windows
type Fetcher struct {
	client  Client
	decoder *abi.Decoder
	config  *Config
	logger  *zap.Logger
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client Client, decoder *abi.Decoder, config *Config, logger *zap.Logger) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder cannot be nil")
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		client:  client,
		decoder: decoder,
		config:  config,
		logger:  logger,
	}, nil
}

// Windows splits [from, to] into the fetcher's chunk size
func (f *Fetcher) Windows(from, to uint64) []bridge.Window {
	return Windows(from, to, f.config.ChunkSize)
}

// Windows splits the inclusive range [from, to] into consecutive windows of
// at most width blocks. It returns nil when from > to or width is 0.
func Windows(from, to, width uint64) []bridge.Window {
	if from > to || width == 0 {
		return nil
	}

	windows := make([]bridge.Window, 0, (to-from)/width+1)
	for start := from; ; {
		end := to
		if to-start >= width {
			end = start + width - 1
		}
		windows = append(windows, bridge.Window{From: start, To: end})
		if end == to || end == math.MaxUint64 {
			break
		}
		start = end + 1
	}
	return windows
}

// FetchWindow queries one window and decodes its logs. Transient faults are
// retried up to MaxRetries times; a window that still fails is reported as
// StatusFault, never as empty. Logs that fail to decode are skipped.
func (f *Fetcher) FetchWindow(ctx context.Context, w bridge.Window) Result {
	res := Result{Window: w}

	var logs []types.Log
	err := retry.Do(func() error {
		res.Attempts++
		var err error
		logs, err = f.client.GetEventLogs(ctx, f.config.Contract, f.decoder.EventSignature(), w.From, w.To)
		return err
	},
		retry.Attempts(uint(f.config.MaxRetries)),
		retry.Delay(f.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(client.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("Retrying window fetch",
				zap.Stringer("window", w),
				zap.Uint("attempt", n+1),
				zap.Int("max_retries", f.config.MaxRetries),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		res.Status = StatusFault
		res.Err = fmt.Errorf("failed to fetch logs for window %s: %w", w, err)
		return res
	}

	for i := range logs {
		log := &logs[i]
		if log.Removed {
			res.Skipped++
			continue
		}
		ev, err := f.decoder.DecodeLog(log)
		if err != nil {
			res.Skipped++
			f.logger.Warn("Skipping undecodable log",
				zap.Uint64("block", log.BlockNumber),
				zap.String("tx", log.TxHash.Hex()),
				zap.Uint("index", log.Index),
				zap.Error(err),
			)
			continue
		}
		res.Events = append(res.Events, ev)
	}

	if len(res.Events) > 0 {
		res.Status = StatusEvents
	} else {
		res.Status = StatusEmpty
	}
	return res
}

// ErrWindowFault is wrapped by FetchRange when a window could not be fetched
var ErrWindowFault = errors.New("window fault")

// FetchRange fetches [from, to] window by window in ascending order. It stops
// at the first faulted window and returns the events gathered before it
// together with the fault.
func (f *Fetcher) FetchRange(ctx context.Context, from, to uint64) ([]*bridge.Event, error) {
	var events []*bridge.Event
	for _, w := range f.Windows(from, to) {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		res := f.FetchWindow(ctx, w)
		if !res.OK() {
			return events, fmt.Errorf("%w: %w", ErrWindowFault, res.Err)
		}
		events = append(events, res.Events...)
	}
	return events, nil
}
