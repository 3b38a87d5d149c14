// Package console coordinates one virtual device or virtual DMS console.
//
// A Console owns the connection manager, the message router with its log,
// the three domain machines, the CA selection mirror and the expiration
// countdown. Facts flow from the backend through the router into the
// machines; intents flow from the command methods through the manager.
// Commands whose preconditions do not hold return ErrNotPermitted and send
// nothing.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/connection"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/countdown"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/device"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/dms"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/enrollment"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/persistence"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/router"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// Errors returned by console commands.
var (
	ErrNotPermitted    = errors.New("command not permitted in current state")
	ErrUnknownSlot     = errors.New("unknown slot")
	ErrInvalidProvider = errors.New("invalid MQTT provider")
	ErrWrongRole       = errors.New("command not available for this console")
)

// DefaultSlot is selected until the user picks another one.
const DefaultSlot = "default"

// Config configures a Console.
type Config struct {
	// Role selects the device or DMS console.
	Role msglog.Role

	// Connection configures the manager. Role is filled in from Config.Role.
	Connection connection.Config

	// CountdownInterval is the expiration recomputation period (default: 1s).
	CountdownInterval time.Duration

	// Now overrides the clock used by the countdown (tests).
	Now func() time.Time

	// Preferences persists the selected slot, the MQTT provider and the last
	// endpoint that accepted a connection (optional). That endpoint is used
	// when Connection.Endpoint is empty.
	Preferences *persistence.Store

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Console is the top-level coordinator.
type Console struct {
	role   msglog.Role
	logger *slog.Logger
	store  *persistence.Store

	manager    *connection.Manager
	router     *router.Router
	messages   *msglog.Ring[msglog.Entry]
	device     *device.Machine
	dms        *dms.Machine
	enrollment *enrollment.Machine
	caSel      dms.CASelection
	ticker     *countdown.Ticker

	mu    sync.Mutex
	prefs persistence.Preferences

	countdownMu sync.Mutex // serializes rebinding the countdown

	unsubscribe []func()
	closeOnce   sync.Once
}

// New creates a console. Nothing is dialed until Start.
func New(cfg Config) (*Console, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Console{
		role:       cfg.Role,
		logger:     logger.With("component", "console", "role", cfg.Role.String()),
		store:      cfg.Preferences,
		messages:   msglog.NewMessageLog(),
		device:     device.NewMachine(),
		dms:        dms.NewMachine(),
		enrollment: enrollment.NewMachine(),
		ticker:     countdown.NewTicker(cfg.CountdownInterval, cfg.Now),
	}

	if err := c.loadPreferences(); err != nil {
		return nil, err
	}

	c.router = router.New(router.Config{
		Log:        c.messages,
		Device:     c.device,
		DMS:        c.dms,
		Enrollment: c.enrollment,
		Logger:     logger.With("component", "router"),
	})

	connCfg := cfg.Connection
	connCfg.Role = cfg.Role
	if connCfg.Endpoint == "" && c.prefs.Endpoint != "" {
		connCfg.Endpoint = c.prefs.Endpoint
		c.logger.Info("using last known endpoint", "endpoint", connCfg.Endpoint)
	}
	if connCfg.Logger == nil {
		connCfg.Logger = logger
	}
	c.manager = connection.NewManager(connCfg)
	c.manager.OnEnvelope(func(e msglog.Entry) {
		_ = c.router.Dispatch(e)
	})

	c.unsubscribe = append(c.unsubscribe,
		c.device.Subscribe(func(device.Snapshot, uint64) {
			c.rebindCountdown()
		}),
		c.dms.Subscribe(func(p dms.Profile, _ uint64) {
			c.caSel.Sync(p.SelectedCA)
		}),
	)

	return c, nil
}

// Start dials the backend. A DMS console then asks for its configuration;
// the request is queued if the dial failed and goes out once the user
// reconnects. The dial error is returned but leaves the console usable.
func (c *Console) Start(ctx context.Context) error {
	err := c.manager.Connect(ctx)
	if err != nil {
		c.logger.Warn("initial connect failed", "endpoint", c.manager.Endpoint(), "error", err)
	} else {
		c.updatePreferences(func(p *persistence.Preferences) {
			p.Endpoint = c.manager.Endpoint()
		})
	}

	if c.role == msglog.RoleDMS {
		if sendErr := c.RequestConfig(); sendErr != nil {
			return errors.Join(err, sendErr)
		}
	}
	return err
}

// Close stops the countdown and the connection.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for _, cancel := range c.unsubscribe {
			cancel()
		}
		c.ticker.Stop()
		err = c.manager.Close()
	})
	return err
}

// Role returns the console role.
func (c *Console) Role() msglog.Role { return c.role }

// Connection returns the connection manager.
func (c *Console) Connection() *connection.Manager { return c.manager }

// Messages returns the message log, newest first.
func (c *Console) Messages() *msglog.Ring[msglog.Entry] { return c.messages }

// Device returns the device state machine.
func (c *Console) Device() *device.Machine { return c.device }

// DMS returns the DMS profile machine.
func (c *Console) DMS() *dms.Machine { return c.dms }

// Enrollment returns the enrollment workflow machine.
func (c *Console) Enrollment() *enrollment.Machine { return c.enrollment }

// Countdown returns the expiration countdown of the selected slot.
func (c *Console) Countdown() *countdown.Ticker { return c.ticker }

// SelectedCA returns the mirrored enrollment CA.
func (c *Console) SelectedCA() string { return c.caSel.Current() }

// State returns the connection readiness.
func (c *Console) State() connection.State { return c.manager.State() }

// Reconnect dials again after the connection closed.
func (c *Console) Reconnect(ctx context.Context) error {
	return c.manager.RequestReconnect(ctx)
}

// ClearMessages empties the message log.
func (c *Console) ClearMessages() {
	c.messages.Clear()
}

// send hands env to the manager.
func (c *Console) send(env wire.Envelope) error {
	if err := c.manager.Send(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Console) requireRole(r msglog.Role) error {
	if c.role != r {
		return fmt.Errorf("%w: %s", ErrWrongRole, c.role)
	}
	return nil
}

// rebindCountdown binds the countdown to the selected slot of the latest
// snapshot. Snapshot and selection are read under countdownMu, so the last
// rebind always sees the newest of both.
func (c *Console) rebindCountdown() {
	c.countdownMu.Lock()
	defer c.countdownMu.Unlock()

	s, rev := c.device.Current()
	target := countdown.Target{Revision: rev}
	if sel := s.Selected(c.SelectedSlot()); len(sel) == 1 {
		target.Expiration = sel[0].ExpirationDate
	}
	c.ticker.Restart(target)
}

// SelectedSlot returns the slot the device commands act on.
func (c *Console) SelectedSlot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs.SelectedSlot
}

// MQTTProvider returns the provider used by ToggleMQTT.
func (c *Console) MQTTProvider() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs.MQTTProvider
}

func (c *Console) loadPreferences() error {
	var p persistence.Preferences
	if c.store != nil {
		var err error
		if p, err = c.store.Load(); err != nil {
			return fmt.Errorf("load preferences: %w", err)
		}
	}
	if p.SelectedSlot == "" {
		p.SelectedSlot = DefaultSlot
	}
	if p.MQTTProvider == "" {
		p.MQTTProvider = wire.ProviderAWS
	}
	c.prefs = p
	return nil
}

// updatePreferences applies fn and persists the result. Persistence
// failures are logged; the in-memory preference still changes.
func (c *Console) updatePreferences(fn func(*persistence.Preferences)) {
	c.mu.Lock()
	fn(&c.prefs)
	p := c.prefs
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	p.SavedAt = time.Time{}
	if err := c.store.Save(p); err != nil {
		c.logger.Warn("saving preferences failed", "path", c.store.Path(), "error", err)
	}
}
