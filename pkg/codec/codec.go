// Package codec attaches wire formats to the payload records. Each format is
// a Codec; the records themselves know nothing about encoding.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smallyunet/ethpayload/pkg/payload"
)

var (
	ErrUnknownCodec    = errors.New("unknown codec")
	ErrMissingField    = errors.New("missing required field")
	ErrWithdrawalShape = errors.New("withdrawal record has undefined members")
	ErrOptionalGap     = errors.New("optional field set after an absent one")
	ErrNilValue        = errors.New("nil value")
)

// Codec encodes and decodes envelopes and bare payloads in one wire format.
type Codec interface {
	Name() string
	EncodeEnvelope(env *payload.Envelope) ([]byte, error)
	DecodeEnvelope(data []byte) (*payload.Envelope, error)
	EncodePayload(p *payload.ExecutionPayload) ([]byte, error)
	DecodePayload(data []byte) (*payload.ExecutionPayload, error)
}

var registry = map[string]Codec{
	JSON{}.Name():       JSON{},
	EngineJSON{}.Name(): EngineJSON{},
	RLP{}.Name():        RLP{},
}

// ByName returns the codec registered under name (case-insensitive).
func ByName(name string) (Codec, error) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownCodec, name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names lists the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func missingField(key, typ string) error {
	return fmt.Errorf("%w '%s' for %s", ErrMissingField, key, typ)
}
