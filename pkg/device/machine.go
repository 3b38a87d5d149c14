package device

import (
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/cell"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// MQTTLogEntry is one cloud-connector log line.
type MQTTLogEntry struct {
	Type      string
	Title     string
	Message   string
	Timestamp time.Time
}

// Machine holds the device snapshot and the MQTT log.
type Machine struct {
	state   *cell.Cell[Snapshot]
	mqttLog *msglog.Ring[MQTTLogEntry]
}

// NewMachine creates a machine in the initial state.
func NewMachine() *Machine {
	return &Machine{
		state:   cell.New(InitialSnapshot()),
		mqttLog: msglog.NewRing[MQTTLogEntry](msglog.DefaultCapacity),
	}
}

// Apply replaces the snapshot with msg and returns the new revision.
func (m *Machine) Apply(msg wire.DeviceUpdated) uint64 {
	return m.state.Store(fromWire(msg))
}

// AppendMQTTLog records a log line, newest first.
func (m *Machine) AppendMQTTLog(msg wire.MQTTLog) {
	m.mqttLog.Append(MQTTLogEntry{
		Type:      msg.Type,
		Title:     msg.Title,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	})
}

// Snapshot returns the current snapshot.
func (m *Machine) Snapshot() Snapshot {
	return m.state.Load()
}

// Current returns the snapshot together with its revision.
func (m *Machine) Current() (Snapshot, uint64) {
	return m.state.Snapshot()
}

// Revision returns the snapshot revision; it increases on every Apply.
func (m *Machine) Revision() uint64 {
	return m.state.Revision()
}

// Subscribe calls fn after every Apply.
func (m *Machine) Subscribe(fn func(Snapshot, uint64)) (cancel func()) {
	return m.state.Subscribe(fn)
}

// MQTTLog returns the log lines, newest first.
func (m *Machine) MQTTLog() []MQTTLogEntry {
	return m.mqttLog.Entries()
}

// ClearMQTTLog empties the MQTT log.
func (m *Machine) ClearMQTTLog() {
	m.mqttLog.Clear()
}

func fromWire(msg wire.DeviceUpdated) Snapshot {
	s := Snapshot{
		Status:        msg.Status,
		SerialNumber:  msg.SerialNumber,
		Model:         msg.Model,
		MQTTConnected: msg.MQTTConnected,
		MQTTProvider:  msg.MQTTProvider,
		TelemetryRate: msg.TelemetryRate,
		Telemetry: Telemetry{
			Temperature:  reading(msg.Telemetry.Temperature),
			Humidity:     reading(msg.Telemetry.Humidity),
			BatteryLevel: reading(msg.Telemetry.BatteryLevel),
		},
		Slots: make([]Slot, 0, len(msg.Slots)),
	}
	for _, p := range msg.Slots {
		s.Slots = append(s.Slots, Slot{
			ID:             p.ID,
			Status:         ParseSlotStatus(p.Status),
			RawStatus:      p.Status,
			SerialNumber:   p.SerialNumber,
			Certificate:    p.Certificate,
			PrivateKey:     p.PrivateKey,
			IssuingCA:      p.IssuingCA,
			ExpirationDate: p.ExpirationDate.Time,
		})
	}
	return s
}

func reading(r wire.Reading) string {
	if r == "" {
		return Placeholder
	}
	return string(r)
}
