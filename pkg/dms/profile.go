// Package dms mirrors the virtual DMS profile and its issued identities.
package dms

import (
	"slices"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/cell"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// Profile statuses.
const (
	StatusEmpty = "EMPTY"
)

// Profile is the DMS registration and its enrollment settings.
type Profile struct {
	Status                  string
	Name                    string
	AuthorizedCAs           []string
	SelectedCA              string
	AutoEnrollment          bool
	AutoCertificateTransfer bool
	EnrolledIdentities      []Identity
}

// Registered reports whether the DMS has been configured.
func (p Profile) Registered() bool {
	return p.Status != StatusEmpty && p.Status != ""
}

// Identity is one certificate issued through the DMS.
type Identity struct {
	EnrolledAt      time.Time
	SerialNumber    string
	DeviceID        string
	DeviceSlot      string
	IssuingCA       string
	IssuingDuration time.Duration
}

// Machine holds the profile.
type Machine struct {
	state *cell.Cell[Profile]
}

// NewMachine creates a machine with an unregistered profile.
func NewMachine() *Machine {
	return &Machine{state: cell.New(Profile{Status: StatusEmpty})}
}

// ApplyUpdate replaces the profile settings. The identity list is carried by
// a separate message and is kept.
func (m *Machine) ApplyUpdate(msg wire.DMSUpdate) uint64 {
	return m.state.Update(func(p Profile) Profile {
		return Profile{
			Status:                  msg.Status,
			Name:                    msg.Name,
			AuthorizedCAs:           slices.Clone(msg.AuthorizedCAs),
			SelectedCA:              msg.SelectedCAForEnrollment,
			AutoEnrollment:          msg.AutomaticEnrollment,
			AutoCertificateTransfer: msg.AutomaticCertificateTransfer,
			EnrolledIdentities:      p.EnrolledIdentities,
		}
	})
}

// ApplyIdentities replaces the identity list, newest first.
func (m *Machine) ApplyIdentities(msg wire.EnrolledIdentitiesUpdate) uint64 {
	ids := make([]Identity, 0, len(msg.Identities))
	for _, p := range msg.Identities {
		ids = append(ids, Identity{
			EnrolledAt:      time.UnixMilli(p.EnrolledTimestamp),
			SerialNumber:    p.SerialNumber,
			DeviceID:        p.DeviceID,
			DeviceSlot:      p.DeviceSlot,
			IssuingCA:       p.IssuingCA,
			IssuingDuration: time.Duration(p.IssuingDuration) * time.Second,
		})
	}
	slices.SortStableFunc(ids, func(a, b Identity) int {
		return b.EnrolledAt.Compare(a.EnrolledAt)
	})

	return m.state.Update(func(p Profile) Profile {
		p.EnrolledIdentities = ids
		return p
	})
}

// Profile returns the current profile.
func (m *Machine) Profile() Profile {
	return m.state.Load()
}

// Revision returns the number of applied updates.
func (m *Machine) Revision() uint64 {
	return m.state.Revision()
}

// Subscribe calls fn after every update.
func (m *Machine) Subscribe(fn func(Profile, uint64)) (cancel func()) {
	return m.state.Subscribe(fn)
}
