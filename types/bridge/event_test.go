package bridge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestEventIsForChain(t *testing.T) {
	e := &Event{DestinationChainID: big.NewInt(80001)}

	assert.True(t, e.IsForChain(big.NewInt(80001)))
	assert.False(t, e.IsForChain(big.NewInt(1)))
	assert.False(t, e.IsForChain(nil))
	assert.False(t, (&Event{}).IsForChain(big.NewInt(80001)))
}

func TestNewAction(t *testing.T) {
	e := &Event{
		SourceTxID:         "0xabc",
		Sender:             common.HexToAddress("0x01"),
		DestinationChainID: big.NewInt(80001),
		Recipient:          common.HexToAddress("0x02"),
		Amount:             big.NewInt(5),
		Nonce:              big.NewInt(1),
		SourceHeight:       42,
	}

	a := NewAction(e)
	assert.Equal(t, "0xabc", a.SourceTxID)
	assert.Equal(t, e.Recipient, a.Recipient)
	assert.Equal(t, int64(5), a.Amount.Int64())
	assert.Equal(t, uint64(42), a.SourceHeight)
	assert.Equal(t, "0xabc:1", a.Key())
}

func TestWindowSize(t *testing.T) {
	assert.Equal(t, uint64(100), Window{From: 101, To: 200}.Size())
	assert.Equal(t, uint64(1), Window{From: 7, To: 7}.Size())
	assert.Equal(t, uint64(0), Window{From: 8, To: 7}.Size())
	assert.Equal(t, "[201,250]", Window{From: 201, To: 250}.String())
}

func TestOutcomeString(t *testing.T) {
	names := map[Outcome]string{
		OutcomeDispatched:        "dispatched",
		OutcomeSkippedWrongChain: "skipped_wrong_chain",
		OutcomeSkippedDuplicate:  "skipped_duplicate",
		OutcomeFailed:            "failed",
		Outcome(99):              "unknown",
	}
	for o, want := range names {
		assert.Equal(t, want, o.String())
	}
}
