package ethereum

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smallyunet/ethpayload/pkg/codec"
	"github.com/smallyunet/ethpayload/pkg/forks"
	"github.com/smallyunet/ethpayload/pkg/payload"
)

// Payload statuses returned by engine_newPayload.
const (
	StatusValid            = "VALID"
	StatusInvalid          = "INVALID"
	StatusSyncing          = "SYNCING"
	StatusAccepted         = "ACCEPTED"
	StatusInvalidBlockHash = "INVALID_BLOCK_HASH"
)

// PayloadID identifies a payload build process on the execution client.
type PayloadID = hexutil.Bytes

// PayloadStatus is the engine_newPayload response.
type PayloadStatus struct {
	Status          string       `json:"status"`
	LatestValidHash *common.Hash `json:"latestValidHash"`
	ValidationError *string      `json:"validationError"`
}

// Accepted reports whether the execution client took the payload.
func (s *PayloadStatus) Accepted() bool {
	switch s.Status {
	case StatusValid, StatusAccepted, StatusSyncing:
		return true
	default:
		return false
	}
}

// GetPayload retrieves a built payload with the fork's engine_getPayload
// method. V1 answers with a bare payload; later versions nest it under
// executionPayload next to fields such as blockValue that are dropped here.
//
// engine_getPayloadV3 does not return the parent beacon block root: the
// consensus client supplied it in the payload attributes. Pass it as
// beaconRoot to get a complete Cancun envelope; a root carried by the
// response itself takes precedence.
func (c *Client) GetPayload(ctx context.Context, fork forks.Fork, id PayloadID, beaconRoot *common.Hash) (*payload.Envelope, error) {
	method := forks.GetPayloadMethod(fork)
	raw, err := c.Call(ctx, method, []interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var (
		dec codec.EngineJSON
		env *payload.Envelope
	)
	if fork == forks.Paris {
		p, err := dec.DecodePayload(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		bare := payload.NewEnvelope(nil, *p)
		env = &bare
	} else if env, err = dec.DecodeEnvelope(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if fork == forks.Cancun {
		if root, ok := env.ParentBeaconBlockRoot(); ok {
			if beaconRoot != nil && *beaconRoot != root {
				c.logger.Warn("Response beacon root differs from the requested one", "response", root.Hex(), "requested", beaconRoot.Hex())
			}
		} else if beaconRoot != nil {
			withRoot := payload.NewEnvelope(beaconRoot, env.ExecutionPayload())
			env = &withRoot
		} else {
			c.logger.Warn("Cancun payload fetched without parent beacon block root, it cannot be submitted as is")
		}
	}

	c.logger.Info("Fetched payload", "method", method, "number", env.Payload().BlockNumber(),
		"hash", env.Payload().BlockHash().Hex(), "txs", env.Payload().TransactionCount())
	return env, nil
}

// NewPayload hands env to the execution client. The method version follows
// the fork detected from the envelope's optional fields; Cancun calls carry
// an empty versioned hash list and the parent beacon block root.
func (c *Client) NewPayload(ctx context.Context, env *payload.Envelope) (*PayloadStatus, error) {
	fork, err := forks.Detect(env)
	if err != nil {
		return nil, err
	}
	encoded, err := codec.EngineJSON{}.EncodePayload(env.Payload())
	if err != nil {
		return nil, err
	}

	params := []interface{}{json.RawMessage(encoded)}
	if fork == forks.Cancun {
		root, _ := env.ParentBeaconBlockRoot()
		params = append(params, []common.Hash{}, root)
	}

	method := forks.NewPayloadMethod(fork)
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	var status PayloadStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	payloadStatuses.WithLabelValues(status.Status).Inc()

	attrs := []any{"method", method, "number", env.Payload().BlockNumber(), "status", status.Status}
	if status.ValidationError != nil {
		attrs = append(attrs, "validationError", *status.ValidationError)
	}
	if status.Accepted() {
		c.logger.Info("Submitted payload", attrs...)
	} else {
		c.logger.Warn("Payload rejected", attrs...)
	}
	return &status, nil
}

// ExchangeCapabilities sends the engine methods this client uses and returns
// the list the execution client supports.
func (c *Client) ExchangeCapabilities(ctx context.Context) ([]string, error) {
	var offered []string
	for _, f := range []forks.Fork{forks.Paris, forks.Shanghai, forks.Cancun} {
		offered = append(offered, forks.NewPayloadMethod(f), forks.GetPayloadMethod(f))
	}
	raw, err := c.Call(ctx, "engine_exchangeCapabilities", []interface{}{offered})
	if err != nil {
		return nil, fmt.Errorf("engine_exchangeCapabilities: %w", err)
	}
	var supported []string
	if err := json.Unmarshal(raw, &supported); err != nil {
		return nil, fmt.Errorf("decode engine_exchangeCapabilities response: %w", err)
	}
	return supported, nil
}
