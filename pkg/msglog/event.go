package msglog

import (
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// Event represents a protocol trace event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the channel (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// LocalRole indicates which console produced the trace.
	LocalRole Role `cbor:"5,keyasint,omitempty"`

	// Endpoint is the backend URL.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"7,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"9,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// DirectionOf maps an envelope origin to a trace direction.
func DirectionOf(o wire.Origin) Direction {
	if o == wire.OriginOut {
		return DirectionOut
	}
	return DirectionIn
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an envelope.
	CategoryMessage Category = 0
	// CategoryState indicates a readiness change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which console is tracing.
type Role uint8

const (
	// RoleDevice is the virtual device console.
	RoleDevice Role = 0
	// RoleDMS is the virtual DMS console.
	RoleDMS Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleDMS:
		return "DMS"
	default:
		return "UNKNOWN"
	}
}

// MaxPayloadSize bounds the envelope body copied into a MessageEvent.
const MaxPayloadSize = 4096

// MessageEvent captures one envelope.
type MessageEvent struct {
	// Type is the envelope type tag.
	Type string `cbor:"1,keyasint"`

	// SentTime is the envelope's own timestamp (epoch millis).
	SentTime int64 `cbor:"2,keyasint,omitempty"`

	// Size is the body size in bytes.
	Size int `cbor:"3,keyasint"`

	// Payload is the raw JSON body (may be truncated).
	Payload []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Payload was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`

	// Queued is set for outbound envelopes held until the channel opens.
	Queued bool `cbor:"6,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent from an envelope.
func NewMessageEvent(env wire.Envelope, queued bool) *MessageEvent {
	ev := &MessageEvent{
		Type:     string(env.Type),
		SentTime: env.Time,
		Size:     len(env.Message),
		Queued:   queued,
	}
	payload := []byte(env.Message)
	if len(payload) > MaxPayloadSize {
		payload = payload[:MaxPayloadSize]
		ev.Truncated = true
	}
	if len(payload) > 0 {
		ev.Payload = append([]byte(nil), payload...)
	}
	return ev
}

// StateChangeEvent captures a readiness transition.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures a failure on the channel or in the router.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
