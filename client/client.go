package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client wraps the Ethereum JSON-RPC client with fault classification,
// per-call timeouts and request rate limiting
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	chainID   *big.Int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Config holds client configuration
type Config struct {
	// Endpoint is the JSON-RPC endpoint URL
	Endpoint string

	// ChainID is the chain ID the endpoint must report; 0 skips the check
	ChainID uint64

	// Timeout bounds each RPC call (and the initial dial)
	Timeout time.Duration

	// RateLimit is requests per second; 0 disables limiting
	RateLimit float64

	// RateBurst is the limiter burst size
	RateBurst int

	Logger *zap.Logger
}

// NewClient dials the endpoint and verifies that it is reachable and serves
// the expected chain. Any failure here is an initialization fault.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(dialCtx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", Classify(err))
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c := &Client{
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		timeout:   cfg.Timeout,
		limiter:   limiter,
		logger:    logger,
	}

	chainID, err := c.ChainID(dialCtx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("%w: endpoint serves chain %s, expected %d", ErrChainMismatch, chainID, cfg.ChainID)
	}
	c.chainID = chainID

	logger.Info("connected to Ethereum RPC",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("chain_id", chainID.String()),
	)

	return c, nil
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Endpoint returns the endpoint the client is connected to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ConnectedChainID returns the chain ID verified at connection time
func (c *Client) ConnectedChainID() *big.Int {
	return c.chainID
}

// call prepares the context for one RPC request: it waits for the rate
// limiter and applies the per-call timeout
func (c *Client) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
				return nil, nil, fmt.Errorf("rate limiter: %w", ctxErr)
			}
			return nil, nil, fmt.Errorf("%w: rate limiter: %w", ErrTimeout, err)
		}
	}
	if c.timeout > 0 {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		return callCtx, cancel, nil
	}
	return ctx, func() {}, nil
}

// ChainID returns the chain ID reported by the endpoint
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	chainID, err := c.ethClient.ChainID(callCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", Classify(err))
	}
	return chainID, nil
}

// GetLatestHeight returns the latest block number
func (c *Client) GetLatestHeight(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	blockNumber, err := c.ethClient.BlockNumber(callCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", Classify(err))
	}
	return blockNumber, nil
}

// GetEventLogs returns the logs emitted by contract with the given event
// signature as topic0 in the inclusive block range [from, to]
func (c *Client) GetEventLogs(ctx context.Context, contract common.Address, signature common.Hash, from, to uint64) ([]types.Log, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{signature}},
	}

	start := time.Now()
	logs, err := c.ethClient.FilterLogs(callCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for blocks %d-%d: %w", from, to, Classify(err))
	}

	c.logger.Debug("fetched logs",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("count", len(logs)),
		zap.Duration("duration", time.Since(start)),
	)

	return logs, nil
}
