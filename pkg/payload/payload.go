package payload

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Withdrawal is a placeholder for a validator withdrawal record. Its fields are
// not defined yet, so it carries none.
type Withdrawal struct{}

// Withdrawals is an ordered list of withdrawal records.
type Withdrawals []Withdrawal

// Equal reports whether both lists hold the same number of records.
func (w Withdrawals) Equal(other Withdrawals) bool {
	return len(w) == len(other)
}

// ExecutionPayloadFields lists every payload field. It is the input to
// NewExecutionPayload and the output of ExecutionPayload.Fields.
//
// Optional fields are pointers; nil means absent.
type ExecutionPayloadFields struct {
	ParentHash    common.Hash
	FeeRecipient  common.Address
	StateRoot     common.Hash
	ReceiptsRoot  common.Hash
	LogsBloom     common.Hash // 32 bytes as declared upstream, not the 256-byte bloom
	PrevRandao    common.Hash
	BlockNumber   uint64
	GasLimit      uint64
	GasUsed       uint64
	Timestamp     uint64
	ExtraData     common.Hash
	BaseFeePerGas *uint256.Int // nil is read as zero
	BlockHash     common.Hash
	Transactions  [][]byte
	Withdrawals   *Withdrawals
	BlobGasUsed   *uint64
	ExcessBlobGas *uint64
}

// ExecutionPayload describes an execution block as handed between the
// consensus and execution layers. Values are immutable once constructed.
type ExecutionPayload struct {
	parentHash       common.Hash
	feeRecipient     common.Address
	stateRoot        common.Hash
	receiptsRoot     common.Hash
	logsBloom        common.Hash
	prevRandao       common.Hash
	blockNumber      uint64
	gasLimit         uint64
	gasUsed          uint64
	timestamp        uint64
	extraData        common.Hash
	baseFeePerGas    uint256.Int
	blockHash        common.Hash
	transactions     [][]byte
	withdrawals      Withdrawals
	hasWithdrawals   bool
	blobGasUsed      uint64
	hasBlobGasUsed   bool
	excessBlobGas    uint64
	hasExcessBlobGas bool
}

// NewExecutionPayload builds a payload from f. Slices and the base fee are
// copied so later changes to f do not reach the payload.
func NewExecutionPayload(f ExecutionPayloadFields) ExecutionPayload {
	p := ExecutionPayload{
		parentHash:   f.ParentHash,
		feeRecipient: f.FeeRecipient,
		stateRoot:    f.StateRoot,
		receiptsRoot: f.ReceiptsRoot,
		logsBloom:    f.LogsBloom,
		prevRandao:   f.PrevRandao,
		blockNumber:  f.BlockNumber,
		gasLimit:     f.GasLimit,
		gasUsed:      f.GasUsed,
		timestamp:    f.Timestamp,
		extraData:    f.ExtraData,
		blockHash:    f.BlockHash,
		transactions: copyTransactions(f.Transactions),
	}
	if f.BaseFeePerGas != nil {
		p.baseFeePerGas.Set(f.BaseFeePerGas)
	}
	if f.Withdrawals != nil {
		p.withdrawals = append(Withdrawals{}, (*f.Withdrawals)...)
		p.hasWithdrawals = true
	}
	if f.BlobGasUsed != nil {
		p.blobGasUsed, p.hasBlobGasUsed = *f.BlobGasUsed, true
	}
	if f.ExcessBlobGas != nil {
		p.excessBlobGas, p.hasExcessBlobGas = *f.ExcessBlobGas, true
	}
	return p
}

func copyTransactions(txs [][]byte) [][]byte {
	out := make([][]byte, len(txs))
	for i, tx := range txs {
		out[i] = common.CopyBytes(tx)
		if out[i] == nil {
			out[i] = []byte{}
		}
	}
	return out
}

func (p *ExecutionPayload) ParentHash() common.Hash { return p.parentHash }
func (p *ExecutionPayload) FeeRecipient() common.Address { return p.feeRecipient }
func (p *ExecutionPayload) StateRoot() common.Hash { return p.stateRoot }
func (p *ExecutionPayload) ReceiptsRoot() common.Hash { return p.receiptsRoot }
func (p *ExecutionPayload) LogsBloom() common.Hash { return p.logsBloom }
func (p *ExecutionPayload) PrevRandao() common.Hash { return p.prevRandao }
func (p *ExecutionPayload) BlockNumber() uint64 { return p.blockNumber }
func (p *ExecutionPayload) GasLimit() uint64 { return p.gasLimit }
func (p *ExecutionPayload) GasUsed() uint64 { return p.gasUsed }
func (p *ExecutionPayload) Timestamp() uint64 { return p.timestamp }
func (p *ExecutionPayload) ExtraData() common.Hash { return p.extraData }
func (p *ExecutionPayload) BlockHash() common.Hash { return p.blockHash }
func (p *ExecutionPayload) TransactionCount() int { return len(p.transactions) }

// BaseFeePerGas returns a copy of the base fee.
func (p *ExecutionPayload) BaseFeePerGas() *uint256.Int {
	return new(uint256.Int).Set(&p.baseFeePerGas)
}

// Transactions returns a copy of the encoded transactions in execution order.
func (p *ExecutionPayload) Transactions() [][]byte {
	return copyTransactions(p.transactions)
}

// Withdrawals returns the withdrawal list and whether it is present.
func (p *ExecutionPayload) Withdrawals() (Withdrawals, bool) {
	if !p.hasWithdrawals {
		return nil, false
	}
	return append(Withdrawals{}, p.withdrawals...), true
}

// BlobGasUsed returns the blob gas counter and whether it is present.
func (p *ExecutionPayload) BlobGasUsed() (uint64, bool) {
	return p.blobGasUsed, p.hasBlobGasUsed
}

// ExcessBlobGas returns the excess blob gas counter and whether it is present.
func (p *ExecutionPayload) ExcessBlobGas() (uint64, bool) {
	return p.excessBlobGas, p.hasExcessBlobGas
}

// Fields returns a deep copy of every field.
func (p *ExecutionPayload) Fields() ExecutionPayloadFields {
	f := ExecutionPayloadFields{
		ParentHash:    p.parentHash,
		FeeRecipient:  p.feeRecipient,
		StateRoot:     p.stateRoot,
		ReceiptsRoot:  p.receiptsRoot,
		LogsBloom:     p.logsBloom,
		PrevRandao:    p.prevRandao,
		BlockNumber:   p.blockNumber,
		GasLimit:      p.gasLimit,
		GasUsed:       p.gasUsed,
		Timestamp:     p.timestamp,
		ExtraData:     p.extraData,
		BaseFeePerGas: p.BaseFeePerGas(),
		BlockHash:     p.blockHash,
		Transactions:  p.Transactions(),
	}
	if w, ok := p.Withdrawals(); ok {
		f.Withdrawals = &w
	}
	if v, ok := p.BlobGasUsed(); ok {
		f.BlobGasUsed = &v
	}
	if v, ok := p.ExcessBlobGas(); ok {
		f.ExcessBlobGas = &v
	}
	return f
}

// Equal compares two payloads field by field. An absent optional field never
// equals a present one, even if the present value is empty or zero.
func (p *ExecutionPayload) Equal(o *ExecutionPayload) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.parentHash != o.parentHash ||
		p.feeRecipient != o.feeRecipient ||
		p.stateRoot != o.stateRoot ||
		p.receiptsRoot != o.receiptsRoot ||
		p.logsBloom != o.logsBloom ||
		p.prevRandao != o.prevRandao ||
		p.blockNumber != o.blockNumber ||
		p.gasLimit != o.gasLimit ||
		p.gasUsed != o.gasUsed ||
		p.timestamp != o.timestamp ||
		p.extraData != o.extraData ||
		!p.baseFeePerGas.Eq(&o.baseFeePerGas) ||
		p.blockHash != o.blockHash {
		return false
	}
	if len(p.transactions) != len(o.transactions) {
		return false
	}
	for i := range p.transactions {
		if !bytes.Equal(p.transactions[i], o.transactions[i]) {
			return false
		}
	}
	if p.hasWithdrawals != o.hasWithdrawals || !p.withdrawals.Equal(o.withdrawals) {
		return false
	}
	if p.hasBlobGasUsed != o.hasBlobGasUsed || p.blobGasUsed != o.blobGasUsed {
		return false
	}
	return p.hasExcessBlobGas == o.hasExcessBlobGas && p.excessBlobGas == o.excessBlobGas
}
