// Package router dispatches logged frames to the domain machines.
//
// Every frame, inbound or outbound, recognized or not, is appended to the
// message log first. Inbound frames that are not envelopes are kept there as
// raw entries and go no further. Inbound frames are then decoded into the closed
// wire.Inbound set and handed to exactly one reducer. A reducer that fails or
// panics affects only the message being dispatched.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// ErrReducerPanic wraps a panic recovered from a reducer.
var ErrReducerPanic = errors.New("reducer panicked")

// DeviceReducer receives the device pushes.
type DeviceReducer interface {
	Apply(msg wire.DeviceUpdated) uint64
	AppendMQTTLog(msg wire.MQTTLog)
}

// DMSReducer receives the DMS profile pushes.
type DMSReducer interface {
	ApplyUpdate(msg wire.DMSUpdate) uint64
	ApplyIdentities(msg wire.EnrolledIdentitiesUpdate) uint64
}

// EnrollmentReducer receives the enrollment process pushes.
type EnrollmentReducer interface {
	Apply(msg wire.EnrollingProcessUpdate) error
}

// Config configures a Router. Nil reducers drop their messages, which lets a
// device console run without DMS state and vice versa.
type Config struct {
	Log        *msglog.Ring[msglog.Entry]
	Device     DeviceReducer
	DMS        DMSReducer
	Enrollment EnrollmentReducer
	Logger     *slog.Logger
}

// Router is the single consumer of connection entries.
type Router struct {
	log        *msglog.Ring[msglog.Entry]
	device     DeviceReducer
	dms        DMSReducer
	enrollment EnrollmentReducer
	logger     *slog.Logger

	// Dispatch may be called from the receive and send goroutines; mu keeps
	// reducer application totally ordered.
	mu sync.Mutex
}

// New creates a router. A nil Log gets a fresh message log.
func New(cfg Config) *Router {
	r := &Router{
		log:        cfg.Log,
		device:     cfg.Device,
		dms:        cfg.DMS,
		enrollment: cfg.Enrollment,
		logger:     cfg.Logger,
	}
	if r.log == nil {
		r.log = msglog.NewMessageLog()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Log returns the message log.
func (r *Router) Log() *msglog.Ring[msglog.Entry] {
	return r.log
}

// Dispatch logs entry and applies it. Unknown types return nil; malformed
// payloads and reducer failures are logged and returned.
func (r *Router) Dispatch(entry msglog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Append(entry)

	if entry.Origin != wire.OriginIn {
		return nil
	}
	if entry.Undecodable() {
		r.logger.Debug("dropping undecodable frame", "bytes", len(entry.Raw))
		return nil
	}

	msg, err := wire.DecodeInbound(entry.Envelope)
	if errors.Is(err, wire.ErrUnknownType) {
		r.logger.Debug("dropping unknown message", "type", entry.Envelope.Type)
		return nil
	}
	if err != nil {
		r.logger.Warn("malformed message", "type", entry.Envelope.Type, "error", err)
		return err
	}

	if err := r.apply(msg); err != nil {
		r.logger.Error("reducer failed", "type", msg.Kind(), "error", err)
		return err
	}
	return nil
}

// apply routes msg to its reducer, converting a panic into an error.
func (r *Router) apply(msg wire.Inbound) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: %v", ErrReducerPanic, msg.Kind(), p)
		}
	}()

	switch m := msg.(type) {
	case wire.DeviceUpdated:
		if r.device != nil {
			rev := r.device.Apply(m)
			r.logger.Debug("device snapshot applied", "revision", rev, "slots", len(m.Slots))
		}
	case wire.MQTTLog:
		if r.device != nil {
			r.device.AppendMQTTLog(m)
		}
	case wire.DMSUpdate:
		if r.dms != nil {
			r.dms.ApplyUpdate(m)
		}
	case wire.EnrolledIdentitiesUpdate:
		if r.dms != nil {
			r.dms.ApplyIdentities(m)
		}
	case wire.EnrollingProcessUpdate:
		if r.enrollment != nil {
			return r.enrollment.Apply(m)
		}
	default:
		return fmt.Errorf("no reducer for %s", msg.Kind())
	}
	return nil
}
