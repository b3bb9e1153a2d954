package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/smallyunet/ethpayload/pkg/payload"
)

// JSON encodes records with camelCase keys. Hashes, addresses, byte strings
// and the base fee are 0x-prefixed hex; block number, gas and timestamp
// counters are plain JSON numbers. Absent optional fields are omitted; on
// decode a missing key and an explicit null both mean absent.
type JSON struct{}

func (JSON) Name() string { return "json" }

// EngineJSON is the Engine API variant of JSON: the same keys, with counters
// written as 0x-prefixed hex quantities.
type EngineJSON struct{}

func (EngineJSON) Name() string { return "engine" }

// quantity is the wire type of a uint64 counter: uint64 for plain numbers,
// hexutil.Uint64 for hex quantities.
type quantity interface{ ~uint64 }

func quantityOf[Q quantity](v uint64) *Q {
	q := Q(v)
	return &q
}

func optionalQuantity[Q quantity](v *uint64) *Q {
	if v == nil {
		return nil
	}
	return quantityOf[Q](*v)
}

func optionalUint64[Q quantity](q *Q) *uint64 {
	if q == nil {
		return nil
	}
	v := uint64(*q)
	return &v
}

// withdrawalJSON is the wire form of payload.Withdrawal. The record has no
// defined members, so any member on input is rejected.
type withdrawalJSON struct{}

func (withdrawalJSON) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }

func (w *withdrawalJSON) UnmarshalJSON(input []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(input, &members); err != nil {
		return err
	}
	if len(members) > 0 {
		keys := make([]string, 0, len(members))
		for k := range members {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("%w: %s", ErrWithdrawalShape, strings.Join(keys, ", "))
	}
	return nil
}

// executionPayloadJSON mirrors payload.ExecutionPayload on the wire. Required
// fields are pointers so that a missing key can be told apart from a zero.
type executionPayloadJSON[Q quantity] struct {
	ParentHash    *common.Hash      `json:"parentHash"`
	FeeRecipient  *common.Address   `json:"feeRecipient"`
	StateRoot     *common.Hash      `json:"stateRoot"`
	ReceiptsRoot  *common.Hash      `json:"receiptsRoot"`
	LogsBloom     *common.Hash      `json:"logsBloom"`
	PrevRandao    *common.Hash      `json:"prevRandao"`
	BlockNumber   *Q                `json:"blockNumber"`
	GasLimit      *Q                `json:"gasLimit"`
	GasUsed       *Q                `json:"gasUsed"`
	Timestamp     *Q                `json:"timestamp"`
	ExtraData     *common.Hash      `json:"extraData"`
	BaseFeePerGas *hexutil.U256     `json:"baseFeePerGas"`
	BlockHash     *common.Hash      `json:"blockHash"`
	Transactions  []hexutil.Bytes   `json:"transactions"`
	Withdrawals   *[]withdrawalJSON `json:"withdrawals,omitempty"`
	BlobGasUsed   *Q                `json:"blobGasUsed,omitempty"`
	ExcessBlobGas *Q                `json:"excessBlobGas,omitempty"`
}

type envelopeJSON[Q quantity] struct {
	ParentBeaconBlockRoot *common.Hash             `json:"parentBeaconBlockRoot,omitempty"`
	ExecutionPayload      *executionPayloadJSON[Q] `json:"executionPayload"`
}

func toPayloadJSON[Q quantity](p *payload.ExecutionPayload) *executionPayloadJSON[Q] {
	f := p.Fields()
	enc := &executionPayloadJSON[Q]{
		ParentHash:    &f.ParentHash,
		FeeRecipient:  &f.FeeRecipient,
		StateRoot:     &f.StateRoot,
		ReceiptsRoot:  &f.ReceiptsRoot,
		LogsBloom:     &f.LogsBloom,
		PrevRandao:    &f.PrevRandao,
		BlockNumber:   quantityOf[Q](f.BlockNumber),
		GasLimit:      quantityOf[Q](f.GasLimit),
		GasUsed:       quantityOf[Q](f.GasUsed),
		Timestamp:     quantityOf[Q](f.Timestamp),
		ExtraData:     &f.ExtraData,
		BaseFeePerGas: (*hexutil.U256)(f.BaseFeePerGas),
		BlockHash:     &f.BlockHash,
		Transactions:  make([]hexutil.Bytes, len(f.Transactions)),
		BlobGasUsed:   optionalQuantity[Q](f.BlobGasUsed),
		ExcessBlobGas: optionalQuantity[Q](f.ExcessBlobGas),
	}
	for i, tx := range f.Transactions {
		enc.Transactions[i] = tx
	}
	if f.Withdrawals != nil {
		ws := make([]withdrawalJSON, len(*f.Withdrawals))
		enc.Withdrawals = &ws
	}
	return enc
}

func fromPayloadJSON[Q quantity](dec *executionPayloadJSON[Q]) (*payload.ExecutionPayload, error) {
	const typ = "ExecutionPayload"
	var f payload.ExecutionPayloadFields
	switch {
	case dec.ParentHash == nil:
		return nil, missingField("parentHash", typ)
	case dec.FeeRecipient == nil:
		return nil, missingField("feeRecipient", typ)
	case dec.StateRoot == nil:
		return nil, missingField("stateRoot", typ)
	case dec.ReceiptsRoot == nil:
		return nil, missingField("receiptsRoot", typ)
	case dec.LogsBloom == nil:
		return nil, missingField("logsBloom", typ)
	case dec.PrevRandao == nil:
		return nil, missingField("prevRandao", typ)
	case dec.BlockNumber == nil:
		return nil, missingField("blockNumber", typ)
	case dec.GasLimit == nil:
		return nil, missingField("gasLimit", typ)
	case dec.GasUsed == nil:
		return nil, missingField("gasUsed", typ)
	case dec.Timestamp == nil:
		return nil, missingField("timestamp", typ)
	case dec.ExtraData == nil:
		return nil, missingField("extraData", typ)
	case dec.BaseFeePerGas == nil:
		return nil, missingField("baseFeePerGas", typ)
	case dec.BlockHash == nil:
		return nil, missingField("blockHash", typ)
	case dec.Transactions == nil:
		return nil, missingField("transactions", typ)
	}
	f.ParentHash = *dec.ParentHash
	f.FeeRecipient = *dec.FeeRecipient
	f.StateRoot = *dec.StateRoot
	f.ReceiptsRoot = *dec.ReceiptsRoot
	f.LogsBloom = *dec.LogsBloom
	f.PrevRandao = *dec.PrevRandao
	f.BlockNumber = uint64(*dec.BlockNumber)
	f.GasLimit = uint64(*dec.GasLimit)
	f.GasUsed = uint64(*dec.GasUsed)
	f.Timestamp = uint64(*dec.Timestamp)
	f.ExtraData = *dec.ExtraData
	f.BaseFeePerGas = (*uint256.Int)(dec.BaseFeePerGas)
	f.BlockHash = *dec.BlockHash
	f.Transactions = make([][]byte, len(dec.Transactions))
	for i, tx := range dec.Transactions {
		f.Transactions[i] = tx
	}
	if dec.Withdrawals != nil {
		ws := make(payload.Withdrawals, len(*dec.Withdrawals))
		f.Withdrawals = &ws
	}
	f.BlobGasUsed = optionalUint64(dec.BlobGasUsed)
	f.ExcessBlobGas = optionalUint64(dec.ExcessBlobGas)

	p := payload.NewExecutionPayload(f)
	return &p, nil
}

func encodePayloadJSON[Q quantity](p *payload.ExecutionPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode execution payload: %w", ErrNilValue)
	}
	return json.Marshal(toPayloadJSON[Q](p))
}

func decodePayloadJSON[Q quantity](data []byte) (*payload.ExecutionPayload, error) {
	var dec executionPayloadJSON[Q]
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, fmt.Errorf("decode execution payload: %w", err)
	}
	return fromPayloadJSON(&dec)
}

func encodeEnvelopeJSON[Q quantity](env *payload.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("encode envelope: %w", ErrNilValue)
	}
	enc := envelopeJSON[Q]{ExecutionPayload: toPayloadJSON[Q](env.Payload())}
	if root, ok := env.ParentBeaconBlockRoot(); ok {
		enc.ParentBeaconBlockRoot = &root
	}
	return json.Marshal(&enc)
}

// decodeEnvelopeJSON ignores keys other than the two envelope members, so
// engine_getPayload results decode directly.
func decodeEnvelopeJSON[Q quantity](data []byte) (*payload.Envelope, error) {
	var dec envelopeJSON[Q]
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if dec.ExecutionPayload == nil {
		return nil, missingField("executionPayload", "ExecutionPayloadEnvelope")
	}
	p, err := fromPayloadJSON(dec.ExecutionPayload)
	if err != nil {
		return nil, err
	}
	env := payload.NewEnvelope(dec.ParentBeaconBlockRoot, *p)
	return &env, nil
}

func (JSON) EncodePayload(p *payload.ExecutionPayload) ([]byte, error) {
	return encodePayloadJSON[uint64](p)
}

func (JSON) DecodePayload(data []byte) (*payload.ExecutionPayload, error) {
	return decodePayloadJSON[uint64](data)
}

func (JSON) EncodeEnvelope(env *payload.Envelope) ([]byte, error) {
	return encodeEnvelopeJSON[uint64](env)
}

func (JSON) DecodeEnvelope(data []byte) (*payload.Envelope, error) {
	return decodeEnvelopeJSON[uint64](data)
}

func (EngineJSON) EncodePayload(p *payload.ExecutionPayload) ([]byte, error) {
	return encodePayloadJSON[hexutil.Uint64](p)
}

func (EngineJSON) DecodePayload(data []byte) (*payload.ExecutionPayload, error) {
	return decodePayloadJSON[hexutil.Uint64](data)
}

func (EngineJSON) EncodeEnvelope(env *payload.Envelope) ([]byte, error) {
	return encodeEnvelopeJSON[hexutil.Uint64](env)
}

func (EngineJSON) DecodeEnvelope(data []byte) (*payload.Envelope, error) {
	return decodeEnvelopeJSON[hexutil.Uint64](data)
}
