package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrConnectivity is returned when the RPC endpoint cannot be reached
	ErrConnectivity = errors.New("chain unreachable")

	// ErrRangeUnavailable is returned when the node cannot serve the requested
	// block range (out of sync, pruned, or range too large)
	ErrRangeUnavailable = errors.New("block range unavailable")

	// ErrTimeout is returned when an RPC call exceeds its deadline
	ErrTimeout = errors.New("rpc timeout")

	// ErrChainMismatch is returned when the endpoint serves an unexpected chain
	ErrChainMismatch = errors.New("chain id mismatch")
)

// JSON-RPC error codes nodes use for oversized or unavailable log queries
const (
	codeLimitExceeded    = -32005
	codeResourceNotFound = -32001
)

// rangeMessages are substrings of node error messages that mean the
// requested range cannot be served right now
var rangeMessages = []string{
	"block range",
	"header not found",
	"unknown block",
	"query returned more than",
	"exceed",
	"too many blocks",
	"missing trie node",
}

// Classify wraps err with the fault class it belongs to. Errors already
// classified, nil, and cancellations pass through unchanged; errors that fit
// no class are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded, codeResourceNotFound:
			return fmt.Errorf("%w: %w", ErrRangeUnavailable, err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rangeMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %w", ErrRangeUnavailable, err)
		}
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrConnectivity, err)
		}
		return err
	}

	var opErr *net.OpError
	var urlErr *url.Error
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr),
		errors.As(err, &urlErr),
		errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	return err
}

// IsTransient reports whether err belongs to a fault class worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrRangeUnavailable) ||
		errors.Is(err, ErrTimeout)
}
