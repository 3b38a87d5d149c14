package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope errors.
var (
	ErrMissingType      = errors.New("envelope has no type")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformedPayload = errors.New("malformed message payload")
)

// MessageType is the type tag of an envelope.
type MessageType string

// Inbound message types (server to console).
const (
	TypeDeviceUpdated            MessageType = "DEVICE_UPDATED"
	TypeMQTTLog                  MessageType = "MQTT_LOG"
	TypeDMSUpdate                MessageType = "DMS_UPDATE"
	TypeEnrolledIdentitiesUpdate MessageType = "ENROLLED_IDENTITIES_UPDATE"
	TypeEnrollingProcessUpdate   MessageType = "ENROLLING_PROCESS_UPDATE"
)

// Outbound command types (console to server).
const (
	TypeGenNewID                MessageType = "GEN_NEW_ID"
	TypeGenNewSlot              MessageType = "GEN_NEW_SLOT"
	TypeEnroll                  MessageType = "ENROLL"
	TypeReenroll                MessageType = "REENROLL"
	TypeMQTTConnect             MessageType = "MQTT_CONNECT"
	TypeMQTTDisconnect          MessageType = "MQTT_DISCONNECT"
	TypeChangeTelemetryDataRate MessageType = "CHANGE_TELEMETRY_DATA_RATE"
	TypeGetConfig               MessageType = "GET_CFG"
	TypeConfigure               MessageType = "CFG"
	TypeSelectCAForEnrollment   MessageType = "CFG_SELECTED_CA_FOR_ENROLLMENT"
	TypeAutoEnrollment          MessageType = "CFG_AUTO_ENROLLMENT"
	TypeAutoTransfer            MessageType = "CFG_AUTO_TRANSFER"
	TypeAuthorizeEnrollment     MessageType = "AUTH_ENROLL"
	TypeAuthorizeTransfer       MessageType = "AUTH_TRANSFER"
)

// IsInbound reports whether t is one of the server push types.
func (t MessageType) IsInbound() bool {
	switch t {
	case TypeDeviceUpdated, TypeMQTTLog, TypeDMSUpdate,
		TypeEnrolledIdentitiesUpdate, TypeEnrollingProcessUpdate:
		return true
	default:
		return false
	}
}

// Envelope is a single frame on the channel.
//
// Envelopes are values: once built they are passed around by copy and never
// modified. Message holds the raw JSON body so the envelope can be logged and
// re-encoded byte for byte.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Time    int64           `json:"time"`
}

// emptyBody is sent for commands without parameters.
var emptyBody = json.RawMessage(`{}`)

// NewEnvelope builds an envelope for the given type and body, stamped with the
// current wall clock. A nil body is encoded as an empty object.
func NewEnvelope(t MessageType, body any) (Envelope, error) {
	return newEnvelopeAt(t, body, time.Now())
}

func newEnvelopeAt(t MessageType, body any, at time.Time) (Envelope, error) {
	if t == "" {
		return Envelope{}, ErrMissingType
	}

	raw := emptyBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s body: %w", t, err)
		}
		raw = data
	}

	return Envelope{
		Type:    t,
		Message: raw,
		Time:    at.UnixMilli(),
	}, nil
}

// Timestamp returns the sender's timestamp.
func (e Envelope) Timestamp() time.Time {
	return time.UnixMilli(e.Time)
}

// HasBody reports whether the envelope carries a non-null message body.
func (e Envelope) HasBody() bool {
	trimmed := bytes.TrimSpace(e.Message)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Encode serializes an envelope to its JSON wire form.
func Encode(e Envelope) ([]byte, error) {
	if e.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses a JSON frame into an envelope.
// The body is kept raw; use DecodeInbound to interpret it.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return e, nil
}

// Origin tags an envelope with the direction it travelled.
type Origin uint8

const (
	// OriginIn marks an envelope received from the server.
	OriginIn Origin = 0
	// OriginOut marks an envelope sent (or queued) by the console.
	OriginOut Origin = 1
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginIn:
		return "IN"
	case OriginOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}
