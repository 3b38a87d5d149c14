// Package device mirrors the virtual device: its identity, certificate slots,
// cloud connector and telemetry.
//
// The backend pushes the whole device on every change. The Machine replaces
// its snapshot wholesale on each push and never merges; the gating predicates
// are pure functions of the current snapshot.
package device

import (
	"slices"
	"time"
)

// Placeholder is shown for fields the backend has not reported yet.
const Placeholder = "-"

// Device statuses.
const (
	StatusEmpty  = "EMPTY"
	StatusWithID = "WITH_ID"
)

// SlotStatus is the lifecycle state of one certificate slot.
type SlotStatus string

// Slot statuses reported by the backend.
const (
	SlotNeedsProvisioning   SlotStatus = "NEEDS_PROVISIONING"
	SlotPendingProvisioning SlotStatus = "PENDING_PROVISIONING"
	SlotProvisioned         SlotStatus = "PROVISIONED"
	SlotNeedsReenrollment   SlotStatus = "NEEDS_REENROLLMENT"
	SlotPendingReenrollment SlotStatus = "PENDING_REENROLLMENT"
	SlotExpired             SlotStatus = "EXPIRED"

	// SlotUnknown stands in for values this console does not recognize.
	// The raw value is kept in Slot.RawStatus.
	SlotUnknown SlotStatus = "UNKNOWN"
)

// ParseSlotStatus maps a backend value to a SlotStatus.
func ParseSlotStatus(s string) SlotStatus {
	switch st := SlotStatus(s); st {
	case SlotNeedsProvisioning, SlotPendingProvisioning, SlotProvisioned,
		SlotNeedsReenrollment, SlotPendingReenrollment, SlotExpired:
		return st
	default:
		return SlotUnknown
	}
}

// Slot is one certificate slot.
type Slot struct {
	ID           string
	Status       SlotStatus
	RawStatus    string
	SerialNumber string
	Certificate  string
	PrivateKey   string
	IssuingCA    string

	// ExpirationDate is zero when the slot holds no certificate.
	ExpirationDate time.Time
}

// IsPending reports whether the backend is working on the slot.
func (s Slot) IsPending() bool {
	return s.Status == SlotPendingProvisioning || s.Status == SlotPendingReenrollment
}

// Telemetry is the latest sensor reading.
type Telemetry struct {
	Temperature  string
	Humidity     string
	BatteryLevel string
}

// Snapshot is the full device state as last pushed by the backend.
type Snapshot struct {
	Status        string
	SerialNumber  string
	Model         string
	MQTTConnected bool
	MQTTProvider  string
	TelemetryRate int
	Telemetry     Telemetry
	Slots         []Slot
}

// InitialSnapshot is the state before the first push.
func InitialSnapshot() Snapshot {
	return Snapshot{
		Status:       Placeholder,
		SerialNumber: Placeholder,
		Model:        Placeholder,
		Telemetry: Telemetry{
			Temperature:  Placeholder,
			Humidity:     Placeholder,
			BatteryLevel: Placeholder,
		},
	}
}

// Selected returns the slots whose ID equals slotID. The backend keeps IDs
// unique, so the result has zero or one element.
func (s Snapshot) Selected(slotID string) []Slot {
	var out []Slot
	for _, slot := range s.Slots {
		if slot.ID == slotID {
			out = append(out, slot)
		}
	}
	return out
}

// selectedOne returns the selected slot when exactly one matches.
func (s Snapshot) selectedOne(slotID string) (Slot, bool) {
	sel := s.Selected(slotID)
	if len(sel) != 1 {
		return Slot{}, false
	}
	return sel[0], true
}

// CanIssueFirstIdentity reports whether ENROLL may be sent for slotID.
func (s Snapshot) CanIssueFirstIdentity(slotID string) bool {
	slot, ok := s.selectedOne(slotID)
	return ok && slot.Status == SlotNeedsProvisioning
}

// CanRenewIdentity reports whether REENROLL may be sent for slotID.
func (s Snapshot) CanRenewIdentity(slotID string) bool {
	slot, ok := s.selectedOne(slotID)
	return ok && (slot.Status == SlotProvisioned || slot.Status == SlotNeedsReenrollment)
}

// CanAddSlot reports whether GEN_NEW_SLOT may be sent.
func (s Snapshot) CanAddSlot() bool {
	return s.Status == StatusWithID
}

// SlotIDs returns the slot IDs in backend order.
func (s Snapshot) SlotIDs() []string {
	ids := make([]string, 0, len(s.Slots))
	for _, slot := range s.Slots {
		ids = append(ids, slot.ID)
	}
	return ids
}

// HasSlot reports whether slotID exists.
func (s Snapshot) HasSlot(slotID string) bool {
	return slices.Contains(s.SlotIDs(), slotID)
}
