package abi

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

var testContract = common.HexToAddress("0x7b79995e5f793A07Bc00c21412e50Eaae098E7f9")

func testEvent() *bridge.Event {
	return &bridge.Event{
		SourceTxID:         common.HexToHash("0x1234").Hex(),
		Sender:             common.HexToAddress("0x1111111111111111111111111111111111111111"),
		DestinationChainID: big.NewInt(80001),
		Recipient:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:             new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18)),
		Nonce:              big.NewInt(7),
		SourceHeight:       150,
		LogIndex:           3,
	}
}

func TestNewDecoder(t *testing.T) {
	d, err := NewDecoder("", "DepositInitiated")
	require.NoError(t, err)

	want := crypto.Keccak256Hash([]byte("DepositInitiated(address,uint256,address,uint256,uint256)"))
	assert.Equal(t, want, d.EventSignature())
	assert.Equal(t, "DepositInitiated", d.EventName())
}

func TestNewDecoderErrors(t *testing.T) {
	_, err := NewDecoder("not json", "DepositInitiated")
	assert.Error(t, err)

	_, err = NewDecoder("", "Withdrawn")
	assert.Error(t, err)

	transferABI := `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"}],"name":"Transfer","type":"event"}]`
	_, err = NewDecoder(transferABI, "Transfer")
	assert.Error(t, err)
}

func TestDecodeLog(t *testing.T) {
	d, err := NewDecoder("", "DepositInitiated")
	require.NoError(t, err)

	in := testEvent()
	log, err := d.EncodeLog(testContract, in)
	require.NoError(t, err)

	out, err := d.DecodeLog(log)
	require.NoError(t, err)

	assert.Equal(t, in.SourceTxID, out.SourceTxID)
	assert.Equal(t, in.Sender, out.Sender)
	assert.Equal(t, in.Recipient, out.Recipient)
	assert.Equal(t, 0, in.DestinationChainID.Cmp(out.DestinationChainID))
	assert.Equal(t, 0, in.Amount.Cmp(out.Amount))
	assert.Equal(t, 0, in.Nonce.Cmp(out.Nonce))
	assert.Equal(t, in.SourceHeight, out.SourceHeight)
	assert.Equal(t, in.LogIndex, out.LogIndex)
}

func TestDecodeLogErrors(t *testing.T) {
	d, err := NewDecoder("", "DepositInitiated")
	require.NoError(t, err)

	good, err := d.EncodeLog(testContract, testEvent())
	require.NoError(t, err)

	tests := []struct {
		name string
		log  *types.Log
		want error
	}{
		{"nil log", nil, ErrMalformedLog},
		{"no topics", &types.Log{}, ErrMalformedLog},
		{"other event", &types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}, ErrUnexpectedEvent},
		{"missing indexed topic", &types.Log{Topics: good.Topics[:2], Data: good.Data}, ErrMalformedLog},
		{"truncated data", &types.Log{Topics: good.Topics, Data: good.Data[:40]}, ErrMalformedLog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.DecodeLog(tt.log)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
