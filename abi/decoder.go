package abi

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

// BridgeABI is the source-chain bridge contract interface the listener decodes
const BridgeABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": true, "internalType": "uint256", "name": "destinationChainId", "type": "uint256"},
			{"indexed": false, "internalType": "address", "name": "recipient", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"}
		],
		"name": "DepositInitiated",
		"type": "event"
	}
]`

var (
	// ErrUnexpectedEvent is returned for logs whose topic0 is not the configured event
	ErrUnexpectedEvent = errors.New("unexpected event")

	// ErrMalformedLog is returned when a log cannot be decoded into a deposit
	ErrMalformedLog = errors.New("malformed log")
)

// Decoder turns raw bridge logs into deposit events
type Decoder struct {
	parsed abi.ABI
	event  abi.Event
}

// NewDecoder parses abiJSON and selects eventName. An empty abiJSON uses BridgeABI.
func NewDecoder(abiJSON, eventName string) (*Decoder, error) {
	if abiJSON == "" {
		abiJSON = BridgeABI
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	event, ok := parsed.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %s not found in ABI", eventName)
	}

	for _, name := range []string{"sender", "destinationChainId", "recipient", "amount", "nonce"} {
		if !hasInput(event, name) {
			return nil, fmt.Errorf("event %s has no %q input", eventName, name)
		}
	}

	return &Decoder{parsed: parsed, event: event}, nil
}

func hasInput(event abi.Event, name string) bool {
	for _, input := range event.Inputs {
		if input.Name == name {
			return true
		}
	}
	return false
}

// EventSignature returns the topic0 hash of the decoded event
func (d *Decoder) EventSignature() common.Hash {
	return d.event.ID
}

// EventName returns the name of the decoded event
func (d *Decoder) EventName() string {
	return d.event.RawName
}

// DecodeLog decodes a DepositInitiated log into a bridge event
func (d *Decoder) DecodeLog(log *types.Log) (*bridge.Event, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: nil log", ErrMalformedLog)
	}
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrMalformedLog)
	}
	if log.Topics[0] != d.event.ID {
		return nil, fmt.Errorf("%w: topic %s", ErrUnexpectedEvent, log.Topics[0].Hex())
	}

	args := make(map[string]interface{})

	// Topics[1:] contain indexed parameters
	var indexed abi.Arguments
	for _, input := range d.event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%w: expected %d indexed topics, got %d", ErrMalformedLog, len(indexed), len(log.Topics)-1)
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("%w: indexed parameters: %w", ErrMalformedLog, err)
		}
	}

	if err := d.event.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrMalformedLog, err)
	}

	ev := &bridge.Event{
		SourceTxID:   log.TxHash.Hex(),
		SourceHeight: log.BlockNumber,
		LogIndex:     log.Index,
	}

	var err error
	if ev.Sender, err = addressArg(args, "sender"); err != nil {
		return nil, err
	}
	if ev.Recipient, err = addressArg(args, "recipient"); err != nil {
		return nil, err
	}
	if ev.DestinationChainID, err = uintArg(args, "destinationChainId"); err != nil {
		return nil, err
	}
	if ev.Amount, err = uintArg(args, "amount"); err != nil {
		return nil, err
	}
	if ev.Nonce, err = uintArg(args, "nonce"); err != nil {
		return nil, err
	}

	return ev, nil
}

func addressArg(args map[string]interface{}, name string) (common.Address, error) {
	v, ok := args[name].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s is %T, want address", ErrMalformedLog, name, args[name])
	}
	return v, nil
}

func uintArg(args map[string]interface{}, name string) (*big.Int, error) {
	v, ok := args[name].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s is %T, want uint256", ErrMalformedLog, name, args[name])
	}
	return v, nil
}

// EncodeLog builds the raw log a bridge contract would emit for ev.
// It is the inverse of DecodeLog and is used to fabricate logs in tests
// and local tooling.
func (d *Decoder) EncodeLog(contract common.Address, ev *bridge.Event) (*types.Log, error) {
	data, err := d.event.Inputs.NonIndexed().Pack(ev.Recipient, ev.Amount, ev.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to pack data: %w", err)
	}

	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			d.event.ID,
			common.BytesToHash(ev.Sender.Bytes()),
			common.BigToHash(ev.DestinationChainID),
		},
		Data:        data,
		BlockNumber: ev.SourceHeight,
		TxHash:      common.HexToHash(ev.SourceTxID),
		Index:       ev.LogIndex,
	}, nil
}
