package testutil

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/bridge-listener/abi"
	"github.com/0xmhha/bridge-listener/types/bridge"
)

// BridgeContract is the contract address used by fixtures
var BridgeContract = common.HexToAddress("0x7b79995e5f793A07Bc00c21412e50Eaae098E7f9")

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// TxID returns a deterministic transaction hash for n
func TxID(n uint64) string {
	return common.BigToHash(new(big.Int).SetUint64(n)).Hex()
}

// NewTestEvent creates a deposit with a deterministic tx id derived from n
func NewTestEvent(n, height uint64, destinationChainID int64) *bridge.Event {
	return &bridge.Event{
		SourceTxID:         TxID(n),
		Sender:             common.BigToAddress(new(big.Int).SetUint64(0x1000 + n)),
		DestinationChainID: big.NewInt(destinationChainID),
		Recipient:          common.BigToAddress(new(big.Int).SetUint64(0x2000 + n)),
		Amount:             new(big.Int).Mul(new(big.Int).SetUint64(n+1), big.NewInt(1e15)),
		Nonce:              new(big.Int).SetUint64(n),
		SourceHeight:       height,
	}
}

// NewTestLog encodes ev as the raw log the bridge contract would emit
func NewTestLog(t *testing.T, ev *bridge.Event) types.Log {
	t.Helper()
	d, err := abi.NewDecoder("", "DepositInitiated")
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	log, err := d.EncodeLog(BridgeContract, ev)
	if err != nil {
		t.Fatalf("failed to encode log: %v", err)
	}
	return *log
}

// MalformedLog returns a DepositInitiated log whose data cannot be decoded
func MalformedLog(t *testing.T, height uint64) types.Log {
	t.Helper()
	log := NewTestLog(t, NewTestEvent(height, height, 80001))
	log.Data = log.Data[:16]
	log.TxHash = common.HexToHash(fmt.Sprintf("0xbad%x", height))
	return log
}
