// Package listener drives the polling loop: it seeds the checkpoint, walks
// new source heights window by window, hands events to the handler and
// advances the checkpoint after each window.
package listener

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/checkpoint"
	"github.com/0xmhha/bridge-listener/fetch"
	"github.com/0xmhha/bridge-listener/handler"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// ErrNotSeeded is returned when a cycle runs before the checkpoint is known
var ErrNotSeeded = errors.New("checkpoint not seeded")

// HeightSource reports the source chain's latest height
type HeightSource interface {
	GetLatestHeight(ctx context.Context) (uint64, error)
}

// WindowFetcher splits ranges into windows and fetches them
type WindowFetcher interface {
	Windows(from, to uint64) []bridge.Window
	FetchWindow(ctx context.Context, w bridge.Window) fetch.Result
}

// EventHandler validates and dispatches a window's events
type EventHandler interface {
	HandleBatch(ctx context.Context, events []*bridge.Event, destinationChainID *big.Int) handler.BatchResult
}

// Sizer reports the number of tracked dedup ids
type Sizer interface {
	Len() int
}

// Config holds loop configuration
type Config struct {
	// DestinationChainID is the chain events must target to be dispatched
	DestinationChainID *big.Int

	// PollInterval is the pause between cycles
	PollInterval time.Duration

	// StartHeight, when non-zero, seeds a missing checkpoint at StartHeight-1
	// instead of the latest height minus one
	StartHeight uint64
}

// Validate validates the loop configuration
func (c *Config) Validate() error {
	if c.DestinationChainID == nil || c.DestinationChainID.Sign() <= 0 {
		return fmt.Errorf("destination chain id must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// Deps are the collaborators the loop drives
type Deps struct {
	Chain   HeightSource
	Fetcher WindowFetcher
	Handler EventHandler
	Store   checkpoint.Store

	// Dedup is optional and only used for status reporting
	Dedup Sizer

	// Metrics is optional
	Metrics *Metrics
}

// Listener is the single-writer owner of the checkpoint
type Listener struct {
	chain   HeightSource
	fetcher WindowFetcher
	handler EventHandler
	store   checkpoint.Store
	dedup   Sizer
	metrics *Metrics
	config  *Config
	logger  *zap.Logger

	// cp is only touched by the loop goroutine
	cp     bridge.Checkpoint
	seeded bool

	// published for concurrent readers
	state      atomic.Int32
	checkpoint atomic.Uint64
	latest     atomic.Uint64
}

// New creates a Listener
func New(deps Deps, config *Config, logger *zap.Logger) (*Listener, error) {
	if deps.Chain == nil {
		return nil, fmt.Errorf("chain cannot be nil")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
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

	l := &Listener{
		chain:   deps.Chain,
		fetcher: deps.Fetcher,
		handler: deps.Handler,
		store:   deps.Store,
		dedup:   deps.Dedup,
		metrics: deps.Metrics,
		config:  config,
		logger:  logger,
	}
	l.setState(StateSeeding)
	return l, nil
}

// State returns the current loop state
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Checkpoint returns the last processed height
func (l *Listener) Checkpoint() uint64 {
	return l.checkpoint.Load()
}

// LatestHeight returns the latest source height observed
func (l *Listener) LatestHeight() uint64 {
	return l.latest.Load()
}

// Status is a point-in-time snapshot for status endpoints
type Status struct {
	State        string `json:"state"`
	Checkpoint   uint64 `json:"last_processed_block"`
	LatestHeight uint64 `json:"latest_height"`
	DedupSize    int    `json:"dedup_size"`
}

// Status returns a snapshot of the loop
func (l *Listener) Status() Status {
	s := Status{
		State:        l.State().String(),
		Checkpoint:   l.Checkpoint(),
		LatestHeight: l.LatestHeight(),
	}
	if l.dedup != nil {
		s.DedupSize = l.dedup.Len()
	}
	return s
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	if l.metrics != nil {
		l.metrics.SetState(s)
	}
}

func (l *Listener) setCheckpoint(height uint64) {
	l.cp.LastProcessedHeight = height
	l.checkpoint.Store(height)
	if l.metrics != nil {
		l.metrics.CheckpointHeight.Set(float64(height))
	}
}

func (l *Listener) setLatest(height uint64) {
	l.latest.Store(height)
	if l.metrics != nil {
		l.metrics.LatestHeight.Set(float64(height))
	}
}

// Run seeds the checkpoint and polls until ctx is canceled. Cancellation is
// observed between windows and while sleeping; a window in flight completes
// its fetch, dispatch and checkpoint write first. Run returns nil on a clean
// stop and an error only when seeding fails.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.seed(ctx); err != nil {
		l.setState(StateStopped)
		return err
	}

	l.logger.Info("Listener started",
		zap.Uint64("checkpoint", l.cp.LastProcessedHeight),
		zap.Stringer("destination_chain_id", l.config.DestinationChainID),
		zap.Duration("poll_interval", l.config.PollInterval),
	)

	for ctx.Err() == nil {
		report, err := l.cycle(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("Cycle ended early", zap.Error(err))
		} else if report.Windows > 0 {
			l.logger.Info("Cycle complete",
				zap.Int("windows", report.Windows),
				zap.Uint64("checkpoint", l.cp.LastProcessedHeight),
				zap.Uint64("latest", report.Latest),
				zap.Int("dispatched", report.Events.Dispatched),
				zap.Int("failed", report.Events.Failed),
			)
		}

		if !l.sleep(ctx) {
			break
		}
	}

	l.shutdown()
	return nil
}

// RunOnce seeds the checkpoint when needed and runs a single polling cycle
func (l *Listener) RunOnce(ctx context.Context) (CycleReport, error) {
	if !l.seeded {
		if err := l.seed(ctx); err != nil {
			return CycleReport{}, err
		}
	}
	return l.cycle(ctx)
}

// Close performs the final checkpoint save after RunOnce
func (l *Listener) Close() {
	l.shutdown()
}

// seed loads the checkpoint, falling back to the configured start height or
// the latest height minus one when it is missing or unreadable
func (l *Listener) seed(ctx context.Context) error {
	l.setState(StateSeeding)

	cp, err := l.store.Load(ctx)
	switch {
	case err == nil:
		l.setCheckpoint(cp.LastProcessedHeight)
		l.seeded = true
		l.logger.Info("Loaded checkpoint", zap.Uint64("checkpoint", cp.LastProcessedHeight))
		return nil

	case errors.Is(err, checkpoint.ErrNotFound), errors.Is(err, checkpoint.ErrCorrupt):
		l.logger.Warn("No usable checkpoint, seeding", zap.Error(err))

	default:
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var height uint64
	if l.config.StartHeight > 0 {
		height = l.config.StartHeight - 1
	} else {
		latest, err := l.chain.GetLatestHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest height for seeding: %w", err)
		}
		l.setLatest(latest)
		if latest > 0 {
			height = latest - 1
		}
	}

	l.setCheckpoint(height)
	l.seeded = true
	l.save(context.WithoutCancel(ctx))

	l.logger.Info("Seeded checkpoint", zap.Uint64("checkpoint", height))
	return nil
}

// CycleReport summarizes one polling cycle
type CycleReport struct {
	Latest  uint64
	Windows int
	Skipped int
	Events  handler.BatchResult
}

// cycle polls the latest height and processes every window up to it. It
// stops early when ctx is canceled between windows or a window faults; a
// faulted window leaves the checkpoint untouched so the next cycle retries it.
func (l *Listener) cycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	if !l.seeded {
		return report, ErrNotSeeded
	}

	work := context.WithoutCancel(ctx)

	l.setState(StatePolling)
	latest, err := l.chain.GetLatestHeight(work)
	if err != nil {
		if l.metrics != nil {
			l.metrics.PollErrorsTotal.Inc()
		}
		return report, fmt.Errorf("failed to get latest height: %w", err)
	}
	l.setLatest(latest)
	report.Latest = latest

	if l.cp.LastProcessedHeight >= latest {
		return report, nil
	}

	for _, w := range l.fetcher.Windows(l.cp.LastProcessedHeight+1, latest) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()

		l.setState(StateFetchingChunk)
		res := l.fetcher.FetchWindow(work, w)
		report.Skipped += res.Skipped
		if !res.OK() {
			if l.metrics != nil {
				l.metrics.RecordWindow(res, time.Since(start))
			}
			l.logger.Error("Window fetch failed, checkpoint kept",
				zap.Stringer("window", w),
				zap.Uint64("checkpoint", l.cp.LastProcessedHeight),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err),
			)
			return report, res.Err
		}

		l.setState(StateDispatching)
		batch := l.handler.HandleBatch(work, res.Events, l.config.DestinationChainID)
		report.Events.Dispatched += batch.Dispatched
		report.Events.SkippedWrongChain += batch.SkippedWrongChain
		report.Events.SkippedDuplicate += batch.SkippedDuplicate
		report.Events.Failed += batch.Failed

		l.setState(StateCheckpointing)
		l.advance(work, w.To)
		report.Windows++

		if l.metrics != nil {
			l.metrics.RecordWindow(res, time.Since(start))
		}
		l.logger.Debug("Window processed",
			zap.Stringer("window", w),
			zap.String("status", res.Status.String()),
			zap.Int("events", len(res.Events)),
			zap.Int("skipped", res.Skipped),
		)
	}

	return report, nil
}

// advance moves the checkpoint forward to height and persists it. The
// checkpoint never moves backwards.
func (l *Listener) advance(ctx context.Context, height uint64) {
	if height <= l.cp.LastProcessedHeight {
		return
	}
	l.setCheckpoint(height)
	l.save(ctx)
}

// save persists the in-memory checkpoint. A failure is logged and counted;
// the in-memory value stays advanced and is written again on the next save.
func (l *Listener) save(ctx context.Context) {
	if err := l.store.Save(ctx, l.cp); err != nil {
		if l.metrics != nil {
			l.metrics.CheckpointFailuresTotal.Inc()
		}
		l.logger.Error("Failed to persist checkpoint",
			zap.Uint64("checkpoint", l.cp.LastProcessedHeight),
			zap.Error(err),
		)
	}
}

// sleep waits for the poll interval; it returns false when ctx is canceled
func (l *Listener) sleep(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	l.setState(StateSleeping)
	timer := time.NewTimer(l.config.PollInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Listener) shutdown() {
	if l.State() == StateStopped {
		return
	}
	l.setState(StateShuttingDown)
	if l.seeded {
		l.save(context.Background())
	}
	l.setState(StateStopped)
	l.logger.Info("Listener stopped", zap.Uint64("checkpoint", l.cp.LastProcessedHeight))
}
