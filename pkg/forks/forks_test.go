package forks

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smallyunet/ethpayload/pkg/payload"
)

func buildEnvelope(withdrawals, blobUsed, excess, root bool) payload.Envelope {
	var f payload.ExecutionPayloadFields
	if withdrawals {
		w := payload.Withdrawals{}
		f.Withdrawals = &w
	}
	if blobUsed {
		v := uint64(131072)
		f.BlobGasUsed = &v
	}
	if excess {
		v := uint64(0)
		f.ExcessBlobGas = &v
	}
	var r *common.Hash
	if root {
		h := common.HexToHash("0x01")
		r = &h
	}
	return payload.NewEnvelope(r, payload.NewExecutionPayload(f))
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name                                string
		withdrawals, blobUsed, excess, root bool
		want                                Fork
		wantErr                             bool
	}{
		{name: "paris", want: Paris},
		{name: "shanghai", withdrawals: true, want: Shanghai},
		{name: "cancun", withdrawals: true, blobUsed: true, excess: true, root: true, want: Cancun},
		{name: "cancun without root", withdrawals: true, blobUsed: true, excess: true, wantErr: true},
		{name: "shanghai with root", withdrawals: true, root: true, wantErr: true},
		{name: "half blob fields", withdrawals: true, blobUsed: true, root: true, wantErr: true},
		{name: "blob without withdrawals", blobUsed: true, excess: true, root: true, wantErr: true},
	}
	for _, tt := range tests {
		env := buildEnvelope(tt.withdrawals, tt.blobUsed, tt.excess, tt.root)
		got, err := Detect(&env)
		if tt.wantErr {
			if !errors.Is(err, ErrInconsistentFields) {
				t.Fatalf("%s: expected ErrInconsistentFields, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestDetectPayloadIgnoresRoot(t *testing.T) {
	env := buildEnvelope(true, true, true, false)
	got, err := DetectPayload(env.Payload())
	if err != nil || got != Cancun {
		t.Fatalf("expected cancun, got %s %v", got, err)
	}
}

func TestMethods(t *testing.T) {
	if got := NewPayloadMethod(Paris); got != "engine_newPayloadV1" {
		t.Fatalf("unexpected method %s", got)
	}
	if got := NewPayloadMethod(Cancun); got != "engine_newPayloadV3" {
		t.Fatalf("unexpected method %s", got)
	}
	if got := GetPayloadMethod(Shanghai); got != "engine_getPayloadV2" {
		t.Fatalf("unexpected method %s", got)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Fork{"paris": Paris, "Capella": Shanghai, " deneb ": Cancun, "cancun": Cancun}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s %v", in, want, got, err)
		}
	}
	if _, err := Parse("prague"); err == nil {
		t.Fatal("expected error for unsupported fork")
	}
	if Fork(9).String() != "fork(9)" {
		t.Fatalf("unexpected name %s", Fork(9))
	}
}
