package enrollment

import (
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/cell"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// Machine holds the current enrollment process.
type Machine struct {
	state *cell.Cell[Process]
}

// NewMachine creates an idle machine.
func NewMachine() *Machine {
	return &Machine{state: cell.New(Process{})}
}

// Apply replaces the process with msg. On ErrInvalidStep the process is left
// unchanged.
func (m *Machine) Apply(msg wire.EnrollingProcessUpdate) error {
	step, err := ParseStep(msg.Status)
	if err != nil {
		return err
	}
	m.state.Store(Process{
		Step:                          step,
		RequestingDate:                msg.RequestingDate,
		DeviceModel:                   msg.DeviceModel,
		DeviceID:                      msg.DeviceID,
		DeviceSlot:                    msg.DeviceSlot,
		CertificateRequest:            msg.CertificateRequest,
		AuthorizedEnrollment:          msg.AuthorizedEnrollment,
		Certificate:                   msg.Certificate,
		SerialNumber:                  msg.SerialNumber,
		ExpirationDate:                msg.ExpirationDate,
		AuthorizedCertificateTransfer: msg.AuthorizedCertificateTransfer,
		IssuingCA:                     msg.IssuingCA,
	})
	return nil
}

// Process returns the current process.
func (m *Machine) Process() Process {
	return m.state.Load()
}

// Revision returns the number of accepted updates.
func (m *Machine) Revision() uint64 {
	return m.state.Revision()
}

// Subscribe calls fn after every accepted update.
func (m *Machine) Subscribe(fn func(Process, uint64)) (cancel func()) {
	return m.state.Subscribe(fn)
}
