package console

import (
	"fmt"
	"slices"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// RequestConfig asks the DMS to push its profile.
func (c *Console) RequestConfig() error {
	if err := c.requireRole(msglog.RoleDMS); err != nil {
		return err
	}
	return c.send(wire.GetConfig())
}

// Configure registers the DMS. Only an unregistered DMS accepts it.
func (c *Console) Configure(username, password, dmsName string) error {
	if err := c.requireRole(msglog.RoleDMS); err != nil {
		return err
	}
	if c.dms.Profile().Registered() {
		return fmt.Errorf("%w: DMS already registered", ErrNotPermitted)
	}
	return c.send(wire.Configure(username, password, dmsName))
}

// ChooseCA selects the CA used for enrollment. Server pushes never reach
// this method; they only update the mirror.
func (c *Console) ChooseCA(ca string) error {
	if err := c.requireRole(msglog.RoleDMS); err != nil {
		return err
	}
	p := c.dms.Profile()
	if !p.Registered() {
		return fmt.Errorf("%w: DMS not registered", ErrNotPermitted)
	}
	if !slices.Contains(p.AuthorizedCAs, ca) {
		return fmt.Errorf("%w: CA %q is not authorized", ErrNotPermitted, ca)
	}
	return c.send(c.caSel.Choose(ca))
}

// SetAutoEnrollment toggles automatic approval of enrollment requests.
func (c *Console) SetAutoEnrollment(enabled bool) error {
	if err := c.requireRegistered(); err != nil {
		return err
	}
	return c.send(wire.SetAutoEnrollment(enabled))
}

// SetAutoTransfer toggles automatic delivery of issued certificates.
func (c *Console) SetAutoTransfer(enabled bool) error {
	if err := c.requireRegistered(); err != nil {
		return err
	}
	return c.send(wire.SetAutoTransfer(enabled))
}

// AuthorizeEnrollment approves the pending enrollment request.
func (c *Console) AuthorizeEnrollment() error {
	if err := c.requireRole(msglog.RoleDMS); err != nil {
		return err
	}
	if !c.enrollment.Process().CanAuthorizeEnrollment(c.dms.Profile().AutoEnrollment) {
		return fmt.Errorf("%w: no enrollment awaiting authorization", ErrNotPermitted)
	}
	return c.send(wire.AuthorizeEnrollment())
}

// AuthorizeTransfer approves delivering the issued certificate.
func (c *Console) AuthorizeTransfer() error {
	if err := c.requireRole(msglog.RoleDMS); err != nil {
		return err
	}
	if !c.enrollment.Process().CanAuthorizeTransfer(c.dms.Profile().AutoCertificateTransfer) {
		return fmt.Errorf("%w: no certificate awaiting transfer", ErrNotPermitted)
	}
	return c.send(wire.AuthorizeTransfer())
}

func (c *Console) requireRegistered() error {
	if err := c.requireRole(msglog.RoleDMS); err != nil {
		return err
	}
	if !c.dms.Profile().Registered() {
		return fmt.Errorf("%w: DMS not registered", ErrNotPermitted)
	}
	return nil
}
