package payload

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func sampleFields() ExecutionPayloadFields {
	return ExecutionPayloadFields{
		ParentHash:    common.HexToHash("0x01"),
		FeeRecipient:  common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		StateRoot:     common.HexToHash("0x02"),
		ReceiptsRoot:  common.HexToHash("0x03"),
		PrevRandao:    common.HexToHash("0x04"),
		BlockNumber:   100,
		GasLimit:      30_000_000,
		GasUsed:       15_000_000,
		Timestamp:     1_700_000_000,
		BaseFeePerGas: uint256.NewInt(7),
		BlockHash:     common.HexToHash("0x05"),
		Transactions:  [][]byte{{0x02, 0xaa}, {0x01}},
	}
}

func TestNewExecutionPayloadCopiesInput(t *testing.T) {
	f := sampleFields()
	p := NewExecutionPayload(f)

	f.Transactions[0][0] = 0xff
	f.BaseFeePerGas.SetUint64(99)

	if got := p.Transactions()[0][0]; got != 0x02 {
		t.Fatalf("transaction mutated through input: %#x", got)
	}
	if got := p.BaseFeePerGas().Uint64(); got != 7 {
		t.Fatalf("base fee mutated through input: %d", got)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	p := NewExecutionPayload(sampleFields())

	txs := p.Transactions()
	txs[1] = []byte{0xee}
	p.BaseFeePerGas().SetUint64(1)

	if p.Transactions()[1][0] != 0x01 {
		t.Fatal("Transactions exposed internal storage")
	}
	if p.BaseFeePerGas().Uint64() != 7 {
		t.Fatal("BaseFeePerGas exposed internal storage")
	}
	if p.TransactionCount() != 2 {
		t.Fatalf("expected 2 transactions, got %d", p.TransactionCount())
	}
}

func TestOptionalFields(t *testing.T) {
	p := NewExecutionPayload(sampleFields())
	if _, ok := p.Withdrawals(); ok {
		t.Fatal("withdrawals should be absent")
	}
	if _, ok := p.BlobGasUsed(); ok {
		t.Fatal("blobGasUsed should be absent")
	}
	if _, ok := p.ExcessBlobGas(); ok {
		t.Fatal("excessBlobGas should be absent")
	}

	f := sampleFields()
	w := Withdrawals{}
	used, excess := uint64(0), uint64(131072)
	f.Withdrawals, f.BlobGasUsed, f.ExcessBlobGas = &w, &used, &excess
	p = NewExecutionPayload(f)

	if got, ok := p.Withdrawals(); !ok || len(got) != 0 {
		t.Fatalf("expected present empty withdrawals, got %v %v", got, ok)
	}
	if got, ok := p.BlobGasUsed(); !ok || got != 0 {
		t.Fatalf("expected present zero blobGasUsed, got %d %v", got, ok)
	}
	if got, ok := p.ExcessBlobGas(); !ok || got != 131072 {
		t.Fatalf("unexpected excessBlobGas %d %v", got, ok)
	}
}

func TestEqual(t *testing.T) {
	base := NewExecutionPayload(sampleFields())

	tests := []struct {
		name   string
		mutate func(f *ExecutionPayloadFields)
		equal  bool
	}{
		{name: "identical", mutate: func(f *ExecutionPayloadFields) {}, equal: true},
		{name: "block number", mutate: func(f *ExecutionPayloadFields) { f.BlockNumber++ }},
		{name: "base fee", mutate: func(f *ExecutionPayloadFields) { f.BaseFeePerGas = uint256.NewInt(8) }},
		{name: "nil base fee is zero", mutate: func(f *ExecutionPayloadFields) { f.BaseFeePerGas = nil }},
		{name: "tx order", mutate: func(f *ExecutionPayloadFields) {
			f.Transactions[0], f.Transactions[1] = f.Transactions[1], f.Transactions[0]
		}},
		{name: "tx dropped", mutate: func(f *ExecutionPayloadFields) { f.Transactions = f.Transactions[:1] }},
		{name: "empty withdrawals differ from absent", mutate: func(f *ExecutionPayloadFields) {
			f.Withdrawals = &Withdrawals{}
		}},
		{name: "zero blob gas differs from absent", mutate: func(f *ExecutionPayloadFields) {
			zero := uint64(0)
			f.BlobGasUsed = &zero
		}},
		{name: "logs bloom", mutate: func(f *ExecutionPayloadFields) { f.LogsBloom = common.HexToHash("0x10") }},
	}

	for _, tt := range tests {
		f := sampleFields()
		tt.mutate(&f)
		other := NewExecutionPayload(f)
		if got := base.Equal(&other); got != tt.equal {
			t.Fatalf("%s: expected Equal=%v, got %v", tt.name, tt.equal, got)
		}
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	f := sampleFields()
	w := Withdrawals{{}, {}}
	used := uint64(393216)
	excess := uint64(0)
	f.Withdrawals, f.BlobGasUsed, f.ExcessBlobGas = &w, &used, &excess

	p := NewExecutionPayload(f)
	q := NewExecutionPayload(p.Fields())
	if !p.Equal(&q) {
		t.Fatal("payload rebuilt from Fields() is not equal")
	}
}

func TestEnvelope(t *testing.T) {
	p := NewExecutionPayload(sampleFields())
	root := common.HexToHash("0xbeac04")

	withRoot := NewEnvelope(&root, p)
	without := NewEnvelope(nil, p)

	if got, ok := withRoot.ParentBeaconBlockRoot(); !ok || got != root {
		t.Fatalf("unexpected root %s %v", got.Hex(), ok)
	}
	if _, ok := without.ParentBeaconBlockRoot(); ok {
		t.Fatal("root should be absent")
	}
	if withRoot.Equal(&without) {
		t.Fatal("envelopes with and without root compared equal")
	}
	inner := withRoot.ExecutionPayload()
	if !inner.Equal(&p) {
		t.Fatal("wrapped payload differs from input")
	}
	if withRoot.Payload().BlockNumber() != 100 {
		t.Fatalf("unexpected block number %d", withRoot.Payload().BlockNumber())
	}

	zero := common.Hash{}
	zeroRoot := NewEnvelope(&zero, p)
	if zeroRoot.Equal(&without) {
		t.Fatal("zero root must differ from absent root")
	}
}
