package payload

import "github.com/ethereum/go-ethereum/common"

// Envelope pairs an execution payload with the optional root of the beacon
// block it descends from.
type Envelope struct {
	parentBeaconBlockRoot    common.Hash
	hasParentBeaconBlockRoot bool
	executionPayload         ExecutionPayload
}

// NewEnvelope wraps p. A nil root means the envelope has no beacon linkage.
func NewEnvelope(parentBeaconBlockRoot *common.Hash, p ExecutionPayload) Envelope {
	env := Envelope{executionPayload: NewExecutionPayload(p.Fields())}
	if parentBeaconBlockRoot != nil {
		env.parentBeaconBlockRoot = *parentBeaconBlockRoot
		env.hasParentBeaconBlockRoot = true
	}
	return env
}

// ParentBeaconBlockRoot returns the beacon root and whether it is present.
func (e *Envelope) ParentBeaconBlockRoot() (common.Hash, bool) {
	return e.parentBeaconBlockRoot, e.hasParentBeaconBlockRoot
}

// ExecutionPayload returns the wrapped payload by value.
func (e *Envelope) ExecutionPayload() ExecutionPayload {
	return e.executionPayload
}

// Payload returns a pointer to the wrapped payload for read-only access
// without copying.
func (e *Envelope) Payload() *ExecutionPayload {
	return &e.executionPayload
}

// Equal compares two envelopes field by field.
func (e *Envelope) Equal(o *Envelope) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.hasParentBeaconBlockRoot != o.hasParentBeaconBlockRoot ||
		e.parentBeaconBlockRoot != o.parentBeaconBlockRoot {
		return false
	}
	return e.executionPayload.Equal(&o.executionPayload)
}
