// Package bridge defines the value types that flow through the listener:
// deposit events read from the source chain, the checkpoint that records
// progress, and the actions handed to the destination side.
package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a decoded DepositInitiated log from the source chain.
// Events are produced by the range fetcher and never mutated afterwards.
type Event struct {
	// SourceTxID identifies the source transaction (hex tx hash).
	// It is the deduplication key.
	SourceTxID string

	// Sender is the depositor on the source chain
	Sender common.Address

	// DestinationChainID is the chain the deposit is meant for
	DestinationChainID *big.Int

	// Recipient receives the funds on the destination chain
	Recipient common.Address

	// Amount is the deposited amount in the token's smallest unit
	Amount *big.Int

	// Nonce is the bridge contract's deposit nonce
	Nonce *big.Int

	// SourceHeight is the block the log was emitted in
	SourceHeight uint64

	// LogIndex is the position of the log within its block
	LogIndex uint
}

// IsForChain reports whether the event targets the given destination chain.
func (e *Event) IsForChain(chainID *big.Int) bool {
	if e.DestinationChainID == nil || chainID == nil {
		return false
	}
	return e.DestinationChainID.Cmp(chainID) == 0
}

// Action describes the counterpart action required on the destination chain.
type Action struct {
	SessionID          string         `json:"session_id,omitempty"`
	SourceTxID         string         `json:"source_tx_id"`
	Nonce              *big.Int       `json:"nonce"`
	Recipient          common.Address `json:"recipient"`
	Amount             *big.Int       `json:"amount"`
	DestinationChainID *big.Int       `json:"destination_chain_id"`
	SourceHeight       uint64         `json:"source_height"`
}

// NewAction builds the action required for a validated event.
func NewAction(e *Event) *Action {
	return &Action{
		SourceTxID:         e.SourceTxID,
		Nonce:              e.Nonce,
		Recipient:          e.Recipient,
		Amount:             e.Amount,
		DestinationChainID: e.DestinationChainID,
		SourceHeight:       e.SourceHeight,
	}
}

// Key returns the idempotency key of the action on the destination side.
func (a *Action) Key() string {
	return fmt.Sprintf("%s:%s", a.SourceTxID, a.Nonce)
}

// Checkpoint is the height up to which all events have been fetched and
// handed to the handler.
type Checkpoint struct {
	LastProcessedHeight uint64 `json:"last_processed_block"`
}

// Window is an inclusive block range fetched in one request.
type Window struct {
	From uint64
	To   uint64
}

// Size returns the number of blocks covered by the window
func (w Window) Size() uint64 {
	if w.To < w.From {
		return 0
	}
	return w.To - w.From + 1
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d]", w.From, w.To)
}
