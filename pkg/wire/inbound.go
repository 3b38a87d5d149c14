package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inbound is the closed set of server pushes. Only the types in this file
// implement it.
type Inbound interface {
	// Kind returns the envelope type the value was decoded from.
	Kind() MessageType

	inbound()
}

// DeviceUpdated is the full device snapshot pushed by the virtual device.
type DeviceUpdated struct {
	Status        string           `json:"status"`
	SerialNumber  string           `json:"serial_number"`
	Model         string           `json:"model"`
	MQTTConnected bool             `json:"mqtt_connected"`
	MQTTProvider  string           `json:"mqtt_provider,omitempty"`
	TelemetryRate int              `json:"telemetry_data_rate,omitempty"`
	Telemetry     TelemetryPayload `json:"telemetry_data"`
	Slots         []SlotPayload    `json:"slots"`
}

// TelemetryPayload is the sensor reading co-delivered with each device snapshot.
type TelemetryPayload struct {
	Temperature  Reading `json:"temperature"`
	Humidity     Reading `json:"humidity"`
	BatteryLevel Reading `json:"battery_level"`
}

// SlotPayload is one certificate slot as serialized by the device backend.
type SlotPayload struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	SerialNumber   string      `json:"serial_number"`
	Certificate    string      `json:"certificate"`
	PrivateKey     string      `json:"private_key"`
	IssuingCA      string      `json:"issuing_ca"`
	ExpirationDate UnixSeconds `json:"expiration_date"`
}

// MQTTLog is a single cloud-connector log line pushed by the device.
type MQTTLog struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DMSUpdate is the full DMS profile snapshot.
type DMSUpdate struct {
	Status                       string   `json:"status"`
	Name                         string   `json:"name"`
	AuthorizedCAs                []string `json:"authorized_cas"`
	SelectedCAForEnrollment      string   `json:"selected_ca_for_enrollment"`
	AutomaticEnrollment          bool     `json:"automatic_enrollment"`
	AutomaticCertificateTransfer bool     `json:"automatic_certificate_transfer"`
}

// EnrolledIdentitiesUpdate carries the complete list of identities issued by
// the DMS. On the wire the message body is a bare JSON array.
type EnrolledIdentitiesUpdate struct {
	Identities []EnrolledIdentityPayload
}

// EnrolledIdentityPayload is one issued identity.
type EnrolledIdentityPayload struct {
	EnrolledTimestamp int64  `json:"enrolled_timestamp"` // epoch millis
	SerialNumber      string `json:"serial_number"`
	DeviceID          string `json:"device_id"`
	DeviceSlot        string `json:"device_slot"`
	IssuingCA         string `json:"issuing_ca"`
	IssuingDuration   int64  `json:"issuing_duration"` // seconds
}

// EnrollingProcessUpdate is the full snapshot of the enrollment in progress.
// Status encodes the step as a numeric suffix, e.g. "STEP_2" or "ENROLLING_2".
type EnrollingProcessUpdate struct {
	Status                        string    `json:"status"`
	RequestingDate                time.Time `json:"requesting_date"`
	DeviceModel                   string    `json:"device_model"`
	IssuingCA                     string    `json:"issuing_ca"`
	DeviceID                      string    `json:"device_id"`
	DeviceSlot                    string    `json:"device_slot"`
	CertificateRequest            string    `json:"certificate_request"`
	AuthorizedEnrollment          bool      `json:"authorized_enrollment"`
	Certificate                   string    `json:"certificate"`
	SerialNumber                  string    `json:"serial_number"`
	ExpirationDate                time.Time `json:"expiration_date"`
	AuthorizedCertificateTransfer bool      `json:"authorized_certificate_transfer"`
}

func (DeviceUpdated) Kind() MessageType            { return TypeDeviceUpdated }
func (MQTTLog) Kind() MessageType                  { return TypeMQTTLog }
func (DMSUpdate) Kind() MessageType                { return TypeDMSUpdate }
func (EnrolledIdentitiesUpdate) Kind() MessageType { return TypeEnrolledIdentitiesUpdate }
func (EnrollingProcessUpdate) Kind() MessageType   { return TypeEnrollingProcessUpdate }

func (DeviceUpdated) inbound()            {}
func (MQTTLog) inbound()                  {}
func (DMSUpdate) inbound()                {}
func (EnrolledIdentitiesUpdate) inbound() {}
func (EnrollingProcessUpdate) inbound()   {}

// DecodeInbound interprets the body of a server push.
//
// Returns ErrUnknownType for tags outside the inbound set and an error
// wrapping ErrMalformedPayload when the body does not decode.
func DecodeInbound(e Envelope) (Inbound, error) {
	switch e.Type {
	case TypeDeviceUpdated:
		var msg DeviceUpdated
		if err := decodeBody(e, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeMQTTLog:
		var msg MQTTLog
		if err := decodeBody(e, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeDMSUpdate:
		var msg DMSUpdate
		if err := decodeBody(e, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeEnrolledIdentitiesUpdate:
		var msg EnrolledIdentitiesUpdate
		if err := decodeBody(e, &msg.Identities); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeEnrollingProcessUpdate:
		var msg EnrollingProcessUpdate
		if err := decodeBody(e, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
}

func decodeBody(e Envelope, v any) error {
	if !e.HasBody() {
		return fmt.Errorf("%w: %s has no message", ErrMalformedPayload, e.Type)
	}
	if err := json.Unmarshal(e.Message, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, e.Type, err)
	}
	return nil
}

// UnixSeconds is a timestamp serialized as unix seconds. The device backend
// sends it as a decimal string; plain JSON numbers are accepted as well.
// Zero, empty and null all decode to the zero time.
type UnixSeconds struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UnixSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		u.Time = time.Time{}
		return nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unix seconds %q: %w", s, err)
	}
	if secs == 0 {
		u.Time = time.Time{}
		return nil
	}
	u.Time = time.Unix(secs, 0)
	return nil
}

// MarshalJSON implements json.Marshaler using the backend's string form.
func (u UnixSeconds) MarshalJSON() ([]byte, error) {
	if u.Time.IsZero() {
		return []byte(`"0"`), nil
	}
	return json.Marshal(strconv.FormatInt(u.Time.Unix(), 10))
}

// Reading is a telemetry value. The backend sends integers, but placeholder
// strings such as "-" are tolerated so a partially initialized device does
// not fail the whole snapshot.
type Reading string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reading) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*r = Reading(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("telemetry reading %s: %w", s, err)
	}
	*r = Reading(n.String())
	return nil
}
