// Package forks infers which fork an envelope belongs to from the optional
// fields it carries, and picks the matching Engine API methods.
package forks

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallyunet/ethpayload/pkg/payload"
)

// Fork enumerates the payload layouts an envelope can take.
type Fork int

const (
	Paris Fork = iota + 1
	Shanghai
	Cancun
)

var ErrInconsistentFields = errors.New("inconsistent fork fields")

var names = map[Fork]string{
	Paris:    "paris",
	Shanghai: "shanghai",
	Cancun:   "cancun",
}

func (f Fork) String() string {
	if n, ok := names[f]; ok {
		return n
	}
	return fmt.Sprintf("fork(%d)", int(f))
}

// Parse reads a fork name. "bellatrix", "capella" and "deneb" are accepted as
// the consensus-layer names of the same forks.
func Parse(s string) (Fork, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paris", "bellatrix", "merge":
		return Paris, nil
	case "shanghai", "capella":
		return Shanghai, nil
	case "cancun", "deneb":
		return Cancun, nil
	default:
		return 0, fmt.Errorf("unknown fork %q", s)
	}
}

// Version is the Engine API method version used for the fork.
func (f Fork) Version() int {
	switch f {
	case Paris:
		return 1
	case Shanghai:
		return 2
	case Cancun:
		return 3
	default:
		return 0
	}
}

// NewPayloadMethod returns the engine_newPayload method for the fork.
func NewPayloadMethod(f Fork) string {
	return fmt.Sprintf("engine_newPayloadV%d", f.Version())
}

// GetPayloadMethod returns the engine_getPayload method for the fork.
func GetPayloadMethod(f Fork) string {
	return fmt.Sprintf("engine_getPayloadV%d", f.Version())
}

// DetectPayload classifies p by its optional fields. Blob fields come as a
// pair and only on top of withdrawals.
func DetectPayload(p *payload.ExecutionPayload) (Fork, error) {
	_, hasWithdrawals := p.Withdrawals()
	_, hasBlobGasUsed := p.BlobGasUsed()
	_, hasExcessBlobGas := p.ExcessBlobGas()

	switch {
	case hasBlobGasUsed != hasExcessBlobGas:
		return 0, fmt.Errorf("%w: blobGasUsed present=%v, excessBlobGas present=%v",
			ErrInconsistentFields, hasBlobGasUsed, hasExcessBlobGas)
	case hasBlobGasUsed && !hasWithdrawals:
		return 0, fmt.Errorf("%w: blob gas fields without withdrawals", ErrInconsistentFields)
	case hasBlobGasUsed:
		return Cancun, nil
	case hasWithdrawals:
		return Shanghai, nil
	default:
		return Paris, nil
	}
}

// Detect classifies env. The parent beacon block root must be present
// exactly when the payload is a Cancun payload.
func Detect(env *payload.Envelope) (Fork, error) {
	f, err := DetectPayload(env.Payload())
	if err != nil {
		return 0, err
	}
	_, hasRoot := env.ParentBeaconBlockRoot()
	if hasRoot != (f == Cancun) {
		return 0, fmt.Errorf("%w: parentBeaconBlockRoot present=%v for %s payload",
			ErrInconsistentFields, hasRoot, f)
	}
	return f, nil
}
