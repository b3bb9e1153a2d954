package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/smallyunet/ethpayload/pkg/payload"
)

// RLP is a compact binary encoding built on go-ethereum's rlp package. Fork
// dependent fields trail the list as optional elements, the same way block
// headers grow across forks, so they must be set in order: a later optional
// field cannot be present while an earlier one is absent.
type RLP struct{}

func (RLP) Name() string { return "rlp" }

type withdrawalRLP struct{}

type executionPayloadRLP struct {
	ParentHash    common.Hash
	FeeRecipient  common.Address
	StateRoot     common.Hash
	ReceiptsRoot  common.Hash
	LogsBloom     common.Hash
	PrevRandao    common.Hash
	BlockNumber   uint64
	GasLimit      uint64
	GasUsed       uint64
	Timestamp     uint64
	ExtraData     common.Hash
	BaseFeePerGas *uint256.Int
	BlockHash     common.Hash
	Transactions  [][]byte

	Withdrawals   *[]withdrawalRLP `rlp:"optional"`
	BlobGasUsed   *uint64          `rlp:"optional"`
	ExcessBlobGas *uint64          `rlp:"optional"`
}

type envelopeRLP struct {
	ExecutionPayload      executionPayloadRLP
	ParentBeaconBlockRoot *common.Hash `rlp:"optional"`
}

func toPayloadRLP(p *payload.ExecutionPayload) (*executionPayloadRLP, error) {
	f := p.Fields()
	switch {
	case f.ExcessBlobGas != nil && f.BlobGasUsed == nil:
		return nil, fmt.Errorf("%w: excessBlobGas without blobGasUsed", ErrOptionalGap)
	case f.BlobGasUsed != nil && f.Withdrawals == nil:
		return nil, fmt.Errorf("%w: blobGasUsed without withdrawals", ErrOptionalGap)
	}
	enc := &executionPayloadRLP{
		ParentHash:    f.ParentHash,
		FeeRecipient:  f.FeeRecipient,
		StateRoot:     f.StateRoot,
		ReceiptsRoot:  f.ReceiptsRoot,
		LogsBloom:     f.LogsBloom,
		PrevRandao:    f.PrevRandao,
		BlockNumber:   f.BlockNumber,
		GasLimit:      f.GasLimit,
		GasUsed:       f.GasUsed,
		Timestamp:     f.Timestamp,
		ExtraData:     f.ExtraData,
		BaseFeePerGas: f.BaseFeePerGas,
		BlockHash:     f.BlockHash,
		Transactions:  f.Transactions,
		BlobGasUsed:   f.BlobGasUsed,
		ExcessBlobGas: f.ExcessBlobGas,
	}
	if f.Withdrawals != nil {
		ws := make([]withdrawalRLP, len(*f.Withdrawals))
		enc.Withdrawals = &ws
	}
	return enc, nil
}

func fromPayloadRLP(dec *executionPayloadRLP) *payload.ExecutionPayload {
	f := payload.ExecutionPayloadFields{
		ParentHash:    dec.ParentHash,
		FeeRecipient:  dec.FeeRecipient,
		StateRoot:     dec.StateRoot,
		ReceiptsRoot:  dec.ReceiptsRoot,
		LogsBloom:     dec.LogsBloom,
		PrevRandao:    dec.PrevRandao,
		BlockNumber:   dec.BlockNumber,
		GasLimit:      dec.GasLimit,
		GasUsed:       dec.GasUsed,
		Timestamp:     dec.Timestamp,
		ExtraData:     dec.ExtraData,
		BaseFeePerGas: dec.BaseFeePerGas,
		BlockHash:     dec.BlockHash,
		Transactions:  dec.Transactions,
		BlobGasUsed:   dec.BlobGasUsed,
		ExcessBlobGas: dec.ExcessBlobGas,
	}
	if dec.Withdrawals != nil {
		ws := make(payload.Withdrawals, len(*dec.Withdrawals))
		f.Withdrawals = &ws
	}
	p := payload.NewExecutionPayload(f)
	return &p
}

func (RLP) EncodePayload(p *payload.ExecutionPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode execution payload: %w", ErrNilValue)
	}
	enc, err := toPayloadRLP(p)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(enc)
}

func (RLP) DecodePayload(data []byte) (*payload.ExecutionPayload, error) {
	var dec executionPayloadRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode execution payload: %w", err)
	}
	return fromPayloadRLP(&dec), nil
}

func (RLP) EncodeEnvelope(env *payload.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("encode envelope: %w", ErrNilValue)
	}
	p, err := toPayloadRLP(env.Payload())
	if err != nil {
		return nil, err
	}
	enc := envelopeRLP{ExecutionPayload: *p}
	if root, ok := env.ParentBeaconBlockRoot(); ok {
		enc.ParentBeaconBlockRoot = &root
	}
	return rlp.EncodeToBytes(&enc)
}

func (RLP) DecodeEnvelope(data []byte) (*payload.Envelope, error) {
	var dec envelopeRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	env := payload.NewEnvelope(dec.ParentBeaconBlockRoot, *fromPayloadRLP(&dec.ExecutionPayload))
	return &env, nil
}
