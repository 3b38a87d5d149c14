package wire

import "fmt"

// Command bodies. Field names follow the backend's JSON.

// SlotCommand is the body of ENROLL and REENROLL.
type SlotCommand struct {
	SlotID string `json:"slot_id"`
}

// MQTTConnectCommand is the body of MQTT_CONNECT.
type MQTTConnectCommand struct {
	SlotID   string `json:"slot_id"`
	Provider string `json:"provider"`
}

// TelemetryRateCommand is the body of CHANGE_TELEMETRY_DATA_RATE.
type TelemetryRateCommand struct {
	NewRate int `json:"new_rate"`
}

// ConfigureCommand is the body of CFG.
type ConfigureCommand struct {
	OperatorUsername string `json:"operator_username"`
	OperatorPassword string `json:"operator_password"`
	DMSName          string `json:"dms_name"`
}

// SelectCACommand is the body of CFG_SELECTED_CA_FOR_ENROLLMENT.
type SelectCACommand struct {
	SelectedCA string `json:"selected_ca"`
}

// AutoEnrollmentCommand is the body of CFG_AUTO_ENROLLMENT.
type AutoEnrollmentCommand struct {
	AutoEnroll bool `json:"auto_enroll"`
}

// AutoTransferCommand is the body of CFG_AUTO_TRANSFER.
type AutoTransferCommand struct {
	AutoTransfer bool `json:"auto_transfer"`
}

// MQTT providers understood by the virtual device.
const (
	ProviderAWS   = "aws"
	ProviderAzure = "azure"
)

// command builds an outbound envelope. Bodies are plain structs, so encoding
// cannot fail.
func command(t MessageType, body any) Envelope {
	env, err := NewEnvelope(t, body)
	if err != nil {
		panic(fmt.Sprintf("wire: build %s: %v", t, err))
	}
	return env
}

// GenNewID asks the device to generate a new device identity.
func GenNewID() Envelope { return command(TypeGenNewID, nil) }

// GenNewSlot asks the device to create an additional slot.
func GenNewSlot() Envelope { return command(TypeGenNewSlot, nil) }

// Enroll requests the first certificate for a slot.
func Enroll(slotID string) Envelope {
	return command(TypeEnroll, SlotCommand{SlotID: slotID})
}

// Reenroll requests a renewed certificate for a slot.
func Reenroll(slotID string) Envelope {
	return command(TypeReenroll, SlotCommand{SlotID: slotID})
}

// MQTTConnect connects the device's cloud connector using the slot identity.
func MQTTConnect(slotID, provider string) Envelope {
	return command(TypeMQTTConnect, MQTTConnectCommand{SlotID: slotID, Provider: provider})
}

// MQTTDisconnect disconnects the device's cloud connector.
func MQTTDisconnect() Envelope { return command(TypeMQTTDisconnect, nil) }

// ChangeTelemetryDataRate sets the telemetry publish period in seconds.
func ChangeTelemetryDataRate(rate int) Envelope {
	return command(TypeChangeTelemetryDataRate, TelemetryRateCommand{NewRate: rate})
}

// GetConfig asks the DMS to push its current profile.
func GetConfig() Envelope { return command(TypeGetConfig, nil) }

// Configure registers the DMS with the given operator credentials.
func Configure(username, password, dmsName string) Envelope {
	return command(TypeConfigure, ConfigureCommand{
		OperatorUsername: username,
		OperatorPassword: password,
		DMSName:          dmsName,
	})
}

// SelectCAForEnrollment sets the CA the DMS enrolls against.
func SelectCAForEnrollment(ca string) Envelope {
	return command(TypeSelectCAForEnrollment, SelectCACommand{SelectedCA: ca})
}

// SetAutoEnrollment toggles automatic enrollment authorization.
func SetAutoEnrollment(enabled bool) Envelope {
	return command(TypeAutoEnrollment, AutoEnrollmentCommand{AutoEnroll: enabled})
}

// SetAutoTransfer toggles automatic certificate transfer.
func SetAutoTransfer(enabled bool) Envelope {
	return command(TypeAutoTransfer, AutoTransferCommand{AutoTransfer: enabled})
}

// AuthorizeEnrollment approves the pending enrollment request.
func AuthorizeEnrollment() Envelope { return command(TypeAuthorizeEnrollment, nil) }

// AuthorizeTransfer approves the pending certificate transfer.
func AuthorizeTransfer() Envelope { return command(TypeAuthorizeTransfer, nil) }
