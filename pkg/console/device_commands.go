package console

import (
	"fmt"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/persistence"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// GenerateIdentity asks the device for a new serial number.
func (c *Console) GenerateIdentity() error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	return c.send(wire.GenNewID())
}

// AddSlot asks the device for an additional slot.
func (c *Console) AddSlot() error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	if !c.device.Snapshot().CanAddSlot() {
		return fmt.Errorf("%w: device has no identity", ErrNotPermitted)
	}
	return c.send(wire.GenNewSlot())
}

// IssueFirstIdentity enrolls the selected slot.
func (c *Console) IssueFirstIdentity() error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	slot := c.SelectedSlot()
	if !c.device.Snapshot().CanIssueFirstIdentity(slot) {
		return fmt.Errorf("%w: slot %q does not need provisioning", ErrNotPermitted, slot)
	}
	return c.send(wire.Enroll(slot))
}

// RenewIdentity re-enrolls the selected slot.
func (c *Console) RenewIdentity() error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	slot := c.SelectedSlot()
	if !c.device.Snapshot().CanRenewIdentity(slot) {
		return fmt.Errorf("%w: slot %q cannot be renewed", ErrNotPermitted, slot)
	}
	return c.send(wire.Reenroll(slot))
}

// SelectSlot makes slotID the target of slot commands and rebinds the
// countdown to it.
func (c *Console) SelectSlot(slotID string) error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	if !c.device.Snapshot().HasSlot(slotID) {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slotID)
	}
	c.updatePreferences(func(p *persistence.Preferences) { p.SelectedSlot = slotID })
	c.rebindCountdown()
	return nil
}

// SetMQTTProvider chooses the cloud connector for the next MQTT_CONNECT.
func (c *Console) SetMQTTProvider(provider string) error {
	switch provider {
	case wire.ProviderAWS, wire.ProviderAzure:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	c.updatePreferences(func(p *persistence.Preferences) { p.MQTTProvider = provider })
	return nil
}

// ToggleMQTT disconnects the cloud connector when connected and connects it
// with the selected slot otherwise. A non-empty provider is remembered for
// later toggles.
func (c *Console) ToggleMQTT(provider string) error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	if provider != "" {
		if err := c.SetMQTTProvider(provider); err != nil {
			return err
		}
	}
	if c.device.Snapshot().MQTTConnected {
		return c.send(wire.MQTTDisconnect())
	}
	return c.send(wire.MQTTConnect(c.SelectedSlot(), c.MQTTProvider()))
}

// ChangeTelemetryRate sets the telemetry period in seconds.
func (c *Console) ChangeTelemetryRate(seconds int) error {
	if err := c.requireRole(msglog.RoleDevice); err != nil {
		return err
	}
	if seconds <= 0 {
		return fmt.Errorf("%w: telemetry rate must be positive, got %d", ErrNotPermitted, seconds)
	}
	return c.send(wire.ChangeTelemetryDataRate(seconds))
}
