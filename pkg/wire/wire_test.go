package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	t.Run("NilBodyIsEmptyObject", func(t *testing.T) {
		env, err := newEnvelopeAt(TypeGenNewID, nil, at)
		require.NoError(t, err)
		assert.Equal(t, TypeGenNewID, env.Type)
		assert.JSONEq(t, `{}`, string(env.Message))
		assert.Equal(t, int64(1700000000123), env.Time)
		assert.True(t, env.Timestamp().Equal(at))
	})

	t.Run("EmptyTypeRejected", func(t *testing.T) {
		_, err := newEnvelopeAt("", nil, at)
		assert.ErrorIs(t, err, ErrMissingType)
	})

	t.Run("UnencodableBody", func(t *testing.T) {
		_, err := newEnvelopeAt(TypeEnroll, make(chan int), at)
		assert.Error(t, err)
	})
}

func TestEncodeShape(t *testing.T) {
	env := Enroll("default")
	data, err := Encode(env)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "ENROLL", generic["type"])
	assert.Equal(t, map[string]any{"slot_id": "default"}, generic["message"])
	assert.Contains(t, generic, "time")
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("WithoutMessage", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"AUTH_ENROLL","time":5}`))
		require.NoError(t, err)
		assert.Equal(t, TypeAuthorizeEnrollment, env.Type)
		assert.False(t, env.HasBody())
		assert.Equal(t, int64(5), env.Time)
	})

	t.Run("MissingType", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"time":5}`))
		assert.ErrorIs(t, err, ErrMissingType)
	})

	t.Run("NotJSON", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`not json`))
		assert.Error(t, err)
	})

	t.Run("NullBody", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"DMS_UPDATE","message":null,"time":1}`))
		require.NoError(t, err)
		assert.False(t, env.HasBody())
	})
}

func TestDecodeInboundDeviceUpdated(t *testing.T) {
	frame := `{
		"type": "DEVICE_UPDATED",
		"time": 1,
		"message": {
			"status": "WITH_ID",
			"serial_number": "aa-bb",
			"model": "Virtual Device",
			"mqtt_connected": true,
			"telemetry_data": {"temperature": 21, "humidity": 40, "battery_level": "-"},
			"slots": [
				{"id": "default", "status": "PROVISIONED", "serial_number": "01",
				 "issuing_ca": "Lamassu-CA", "expiration_date": "1893456000"},
				{"id": "1", "status": "NEEDS_PROVISIONING", "expiration_date": 0}
			]
		}
	}`

	env, err := DecodeEnvelope([]byte(frame))
	require.NoError(t, err)

	msg, err := DecodeInbound(env)
	require.NoError(t, err)

	dev, ok := msg.(DeviceUpdated)
	require.True(t, ok)
	assert.Equal(t, TypeDeviceUpdated, dev.Kind())
	assert.Equal(t, "WITH_ID", dev.Status)
	assert.True(t, dev.MQTTConnected)
	assert.Equal(t, Reading("21"), dev.Telemetry.Temperature)
	assert.Equal(t, Reading("-"), dev.Telemetry.BatteryLevel)
	require.Len(t, dev.Slots, 2)
	assert.Equal(t, int64(1893456000), dev.Slots[0].ExpirationDate.Unix())
	assert.True(t, dev.Slots[1].ExpirationDate.IsZero())
}

func TestDecodeInboundIdentities(t *testing.T) {
	env := Envelope{
		Type:    TypeEnrolledIdentitiesUpdate,
		Message: json.RawMessage(`[{"enrolled_timestamp": 10, "serial_number": "a", "issuing_duration": 3}]`),
	}
	msg, err := DecodeInbound(env)
	require.NoError(t, err)

	ids := msg.(EnrolledIdentitiesUpdate)
	require.Len(t, ids.Identities, 1)
	assert.Equal(t, int64(10), ids.Identities[0].EnrolledTimestamp)
	assert.Equal(t, int64(3), ids.Identities[0].IssuingDuration)
}

func TestDecodeInboundEnrollingProcess(t *testing.T) {
	env := Envelope{
		Type: TypeEnrollingProcessUpdate,
		Message: json.RawMessage(`{"status":"ENROLLING_1","device_slot":"default",
			"requesting_date":"2024-01-02T03:04:05Z","authorized_enrollment":false}`),
	}
	msg, err := DecodeInbound(env)
	require.NoError(t, err)

	proc := msg.(EnrollingProcessUpdate)
	assert.Equal(t, "ENROLLING_1", proc.Status)
	assert.Equal(t, "default", proc.DeviceSlot)
	assert.Equal(t, 2024, proc.RequestingDate.Year())
}

func TestDecodeInboundErrors(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want error
	}{
		{"UnknownType", Envelope{Type: "SOMETHING_ELSE", Message: json.RawMessage(`{}`)}, ErrUnknownType},
		{"OutboundType", Envelope{Type: TypeEnroll, Message: json.RawMessage(`{}`)}, ErrUnknownType},
		{"MissingBody", Envelope{Type: TypeDMSUpdate}, ErrMalformedPayload},
		{"WrongShape", Envelope{Type: TypeDMSUpdate, Message: json.RawMessage(`[1,2]`)}, ErrMalformedPayload},
		{"BadExpiration", Envelope{Type: TypeDeviceUpdated, Message: json.RawMessage(`{"slots":[{"expiration_date":"soon"}]}`)}, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound(tt.env)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCommandBodies(t *testing.T) {
	tests := []struct {
		env      Envelope
		wantType MessageType
		wantBody string
	}{
		{GenNewID(), TypeGenNewID, `{}`},
		{GenNewSlot(), TypeGenNewSlot, `{}`},
		{Reenroll("1"), TypeReenroll, `{"slot_id":"1"}`},
		{MQTTConnect("default", ProviderAzure), TypeMQTTConnect, `{"slot_id":"default","provider":"azure"}`},
		{MQTTDisconnect(), TypeMQTTDisconnect, `{}`},
		{ChangeTelemetryDataRate(5), TypeChangeTelemetryDataRate, `{"new_rate":5}`},
		{GetConfig(), TypeGetConfig, `{}`},
		{Configure("op", "secret", "dms-1"), TypeConfigure, `{"operator_username":"op","operator_password":"secret","dms_name":"dms-1"}`},
		{SelectCAForEnrollment("CA-1"), TypeSelectCAForEnrollment, `{"selected_ca":"CA-1"}`},
		{SetAutoEnrollment(true), TypeAutoEnrollment, `{"auto_enroll":true}`},
		{SetAutoTransfer(false), TypeAutoTransfer, `{"auto_transfer":false}`},
		{AuthorizeEnrollment(), TypeAuthorizeEnrollment, `{}`},
		{AuthorizeTransfer(), TypeAuthorizeTransfer, `{}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.env.Type)
			assert.JSONEq(t, tt.wantBody, string(tt.env.Message))
			assert.False(t, tt.env.Type.IsInbound())
		})
	}
}

func TestOriginString(t *testing.T) {
	assert.Equal(t, "IN", OriginIn.String())
	assert.Equal(t, "OUT", OriginOut.String())
	assert.Equal(t, "UNKNOWN", Origin(7).String())
}
