package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/transport"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// Connection errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrReconnectIgnored = errors.New("reconnect ignored: channel not closed")
	ErrNoEndpoint       = errors.New("no endpoint configured")
)

// Defaults.
const (
	DefaultDrainInterval = 1 * time.Second
	DefaultDialTimeout   = 30 * time.Second

	observerBuffer = 8
)

// Handler receives every IN and OUT envelope. IN entries arrive in channel
// order from a single goroutine; OUT entries arrive on the sender's goroutine,
// so a handler must be safe for concurrent use.
type Handler func(msglog.Entry)

// Config configures a Manager.
type Config struct {
	// Endpoint is the backend URL (ws://host:port/path).
	Endpoint string

	// Dialer opens channels. Defaults to a transport.WebSocketDialer.
	Dialer transport.Dialer

	// DrainInterval is the drain checker period (default: 1s).
	DrainInterval time.Duration

	// DialTimeout bounds a single dial (default: 30s).
	DialTimeout time.Duration

	// Queue bounds the outbound queue. The zero value is unbounded.
	Queue QueueConfig

	// Reconnect selects the reconnection policy (default: manual).
	Reconnect ReconnectPolicy

	// Backoff tunes ReconnectBackoff.
	Backoff BackoffConfig

	// Role tags protocol trace events.
	Role msglog.Role

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives the protocol trace (optional).
	ProtocolLogger msglog.Logger

	// Now overrides the clock used to stamp entries (tests).
	Now func() time.Time
}

// Manager owns the channel, its readiness and the outbound queue.
type Manager struct {
	cfg     Config
	dialer  transport.Dialer
	logger  *slog.Logger
	trace   msglog.Logger
	now     func() time.Time
	backoff *Backoff

	// sendMu serializes transmissions so queued and direct sends keep their
	// order. Lock order: sendMu, then mu.
	sendMu sync.Mutex

	mu        sync.Mutex
	state     State
	channel   transport.Channel
	connID    string
	queue     outboundQueue
	draining  bool
	closed    bool
	handler   Handler
	observers map[uint64]chan State
	nextObsID uint64

	openedCh    chan struct{}
	reconnectCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager in the CLOSED state. Call Connect to dial.
func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = transport.NewWebSocketDialer()
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var trace msglog.Logger = msglog.NoopLogger{}
	if cfg.ProtocolLogger != nil {
		trace = cfg.ProtocolLogger
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:         cfg,
		dialer:      cfg.Dialer,
		logger:      logger.With("component", "connection"),
		trace:       trace,
		now:         cfg.Now,
		backoff:     NewBackoffWithConfig(cfg.Backoff),
		state:       StateClosed,
		queue:       outboundQueue{cfg: cfg.Queue},
		observers:   make(map[uint64]chan State),
		openedCh:    make(chan struct{}, 1),
		reconnectCh: make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.Reconnect == ReconnectBackoff {
		m.wg.Add(1)
		go m.reconnectLoop()
	}

	return m
}

// OnEnvelope registers the envelope handler. It replaces any previous one.
// Inbound frames that are not envelopes reach the handler as raw entries.
func (m *Manager) OnEnvelope(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// State returns the current readiness.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the trace ID of the current channel, or "".
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Endpoint returns the configured endpoint.
func (m *Manager) Endpoint() string {
	return m.cfg.Endpoint
}

// Pending returns the number of queued envelopes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len()
}

// PendingEnvelopes returns a copy of the queue in flush order.
func (m *Manager) PendingEnvelopes() []wire.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.snapshot()
}

// Connect dials the endpoint. It is a no-op while CONNECTING or OPEN.
// On failure readiness returns to CLOSED and the dial error is returned.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cfg.Endpoint == "" {
		return ErrNoEndpoint
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	tr := m.setStateLocked(StateConnecting, "connect")
	m.mu.Unlock()
	m.traceState(tr)

	m.logger.Debug("dialing", "endpoint", m.cfg.Endpoint)

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	ch, err := m.dialer.Dial(dialCtx, m.cfg.Endpoint)
	cancel()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return ErrManagerClosed
	}
	if err != nil {
		tr := m.setStateLocked(StateClosed, err.Error())
		m.mu.Unlock()
		m.traceState(tr)
		m.traceError(err, "dial")
		m.logger.Warn("dial failed", "endpoint", m.cfg.Endpoint, "error", err)
		return fmt.Errorf("connect %s: %w", m.cfg.Endpoint, err)
	}

	m.channel = ch
	m.connID = uuid.NewString()
	m.backoff.Reset()
	tr = m.setStateLocked(StateOpen, "")
	m.wg.Add(1)
	m.mu.Unlock()

	m.traceState(tr)
	m.logger.Info("channel open", "endpoint", m.cfg.Endpoint, "conn_id", tr.connID)

	go m.receiveLoop(ch, tr.connID)
	m.wakeDrainer()

	return nil
}

// RequestReconnect dials again after the channel closed. In any other state
// it does nothing and returns ErrReconnectIgnored.
func (m *Manager) RequestReconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state != StateClosed {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("reconnect ignored", "state", state)
		return ErrReconnectIgnored
	}
	m.mu.Unlock()

	return m.Connect(ctx)
}

// Send transmits env when OPEN and queues it otherwise. Every accepted
// envelope is reported to the handler as an OUT entry, queued or not.
// The only error besides ErrManagerClosed is ErrQueueFull from a bounded
// queue with OverflowRejectNewest.
func (m *Manager) Send(env wire.Envelope) error {
	stamp := m.now()

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}

	open := m.state == StateOpen
	evicted, err := m.queue.push(env)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("outbound queue full, command rejected", "type", env.Type, "capacity", m.cfg.Queue.Capacity)
		return err
	}
	startedChecker := !open && m.startDrainerLocked()
	connID := m.connID
	handler := m.handler
	m.mu.Unlock()

	if evicted != nil {
		m.logger.Warn("outbound queue full, dropped oldest command", "dropped", evicted.Type, "capacity", m.cfg.Queue.Capacity)
	}

	m.trace.Log(msglog.Event{
		Timestamp:    stamp,
		ConnectionID: connID,
		Direction:    msglog.DirectionOut,
		Category:     msglog.CategoryMessage,
		LocalRole:    m.cfg.Role,
		Endpoint:     m.cfg.Endpoint,
		Message:      msglog.NewMessageEvent(env, !open),
	})
	if handler != nil {
		handler(msglog.Entry{Origin: wire.OriginOut, Timestamp: stamp, Envelope: env})
	}

	if startedChecker {
		m.logger.Debug("queued while not open, started drain checker", "type", env.Type)
	}
	if open {
		m.flushLocked()
	}
	return nil
}

// flushLocked sends the whole queue in FIFO order if the channel is OPEN.
// It reports whether the queue was emptied. Callers hold sendMu.
func (m *Manager) flushLocked() bool {
	m.mu.Lock()
	if m.state != StateOpen || m.channel == nil {
		m.mu.Unlock()
		return false
	}
	ch := m.channel
	batch := m.queue.takeAll()
	m.mu.Unlock()

	for i, env := range batch {
		data, err := wire.Encode(env)
		if err != nil {
			// Envelopes are validated at construction; drop the bad one.
			m.logger.Error("encode envelope", "type", env.Type, "error", err)
			continue
		}
		if err := ch.Send(data); err != nil {
			m.mu.Lock()
			m.queue.restore(batch[i:])
			m.mu.Unlock()
			m.channelLost(ch, fmt.Errorf("send %s: %w", env.Type, err))
			return false
		}
	}

	if len(batch) > 1 {
		m.logger.Debug("flushed outbound queue", "count", len(batch))
	}
	return true
}

// drainLoop is the drain checker. It polls readiness and flushes the queue
// the first time it sees OPEN, then exits.
func (m *Manager) drainLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.mu.Lock()
			m.draining = false
			m.mu.Unlock()
			return
		case <-ticker.C:
		case <-m.openedCh:
		}

		m.sendMu.Lock()
		m.flushLocked()
		m.mu.Lock()
		done := m.queue.len() == 0
		if done {
			m.draining = false
		}
		m.mu.Unlock()
		m.sendMu.Unlock()

		if done {
			return
		}
	}
}

// startDrainerLocked starts the drain checker if the queue holds envelopes
// and none is running. Callers hold mu.
func (m *Manager) startDrainerLocked() bool {
	if m.draining || m.closed || m.queue.len() == 0 {
		return false
	}
	m.draining = true
	m.wg.Add(1)
	go m.drainLoop()
	return true
}

func (m *Manager) wakeDrainer() {
	select {
	case m.openedCh <- struct{}{}:
	default:
	}
}

// receiveLoop reads frames from ch until it fails.
func (m *Manager) receiveLoop(ch transport.Channel, connID string) {
	defer m.wg.Done()

	for {
		data, err := ch.Receive()
		if err != nil {
			m.channelLost(ch, err)
			return
		}
		stamp := m.now()

		env, decodeErr := wire.DecodeEnvelope(data)

		m.mu.Lock()
		current := m.channel == ch
		handler := m.handler
		m.mu.Unlock()
		if !current {
			return
		}

		if decodeErr != nil {
			m.logger.Warn("undecodable frame", "conn_id", connID, "error", decodeErr)
			m.traceError(decodeErr, "decode frame")
			if handler != nil {
				handler(msglog.Entry{Origin: wire.OriginIn, Timestamp: stamp, Raw: bytes.Clone(data)})
			}
			continue
		}

		m.trace.Log(msglog.Event{
			Timestamp:    stamp,
			ConnectionID: connID,
			Direction:    msglog.DirectionIn,
			Category:     msglog.CategoryMessage,
			LocalRole:    m.cfg.Role,
			Endpoint:     m.cfg.Endpoint,
			Message:      msglog.NewMessageEvent(env, false),
		})
		if handler != nil {
			handler(msglog.Entry{Origin: wire.OriginIn, Timestamp: stamp, Envelope: env})
		}
	}
}

// channelLost moves to CLOSED if ch is still the current channel.
func (m *Manager) channelLost(ch transport.Channel, cause error) {
	m.mu.Lock()
	if m.channel != ch {
		m.mu.Unlock()
		return
	}
	m.channel = nil
	reason := "closed by peer"
	if !errors.Is(cause, transport.ErrChannelClosed) {
		reason = cause.Error()
	}
	tr := m.setStateLocked(StateClosed, reason)
	closed := m.closed
	m.startDrainerLocked()
	m.mu.Unlock()

	_ = ch.Close()
	m.traceState(tr)

	if closed {
		return
	}
	if errors.Is(cause, transport.ErrChannelClosed) {
		m.logger.Info("channel closed", "conn_id", tr.connID)
	} else {
		m.traceError(cause, "channel")
		m.logger.Warn("channel lost", "conn_id", tr.connID, "error", cause)
	}

	if m.cfg.Reconnect == ReconnectBackoff {
		m.triggerReconnect()
	}
}

// ObserveReadiness streams readiness transitions. The current state is sent
// first. The channel is closed when ctx ends or the manager is closed. A slow
// reader loses the oldest undelivered transitions, never the latest.
func (m *Manager) ObserveReadiness(ctx context.Context) <-chan State {
	out := make(chan State, observerBuffer)

	m.mu.Lock()
	if m.closed {
		out <- m.state
		close(out)
		m.mu.Unlock()
		return out
	}
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = out
	out <- m.state
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
		}
		m.mu.Lock()
		if ch, ok := m.observers[id]; ok {
			delete(m.observers, id)
			close(ch)
		}
		m.mu.Unlock()
	}()

	return out
}

// transition describes a readiness change for tracing after unlock.
type transition struct {
	from, to State
	reason   string
	connID   string
}

// setStateLocked changes readiness and notifies observers. Callers hold mu.
func (m *Manager) setStateLocked(s State, reason string) transition {
	tr := transition{from: m.state, to: s, reason: reason, connID: m.connID}
	m.state = s
	if s == StateClosed {
		m.connID = ""
	}
	for _, ch := range m.observers {
		publish(ch, s)
	}
	return tr
}

// publish delivers s without blocking, discarding the oldest pending value
// when the buffer is full.
func publish(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Manager) traceState(tr transition) {
	m.trace.Log(msglog.Event{
		Timestamp:    m.now(),
		ConnectionID: tr.connID,
		Category:     msglog.CategoryState,
		LocalRole:    m.cfg.Role,
		Endpoint:     m.cfg.Endpoint,
		StateChange: &msglog.StateChangeEvent{
			OldState: tr.from.String(),
			NewState: tr.to.String(),
			Reason:   tr.reason,
		},
	})
}

func (m *Manager) traceError(err error, context string) {
	m.trace.Log(msglog.Event{
		Timestamp:    m.now(),
		ConnectionID: m.ConnectionID(),
		Category:     msglog.CategoryError,
		LocalRole:    m.cfg.Role,
		Endpoint:     m.cfg.Endpoint,
		Error:        &msglog.ErrorEventData{Message: err.Error(), Context: context},
	})
}

// Close shuts the manager down: readiness goes CLOSING then CLOSED, all
// loops stop and observer streams end. Queued envelopes are discarded.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ch := m.channel
	m.channel = nil

	var trs []transition
	if m.state != StateClosed {
		trs = append(trs, m.setStateLocked(StateClosing, "shutdown"))
	}
	m.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}

	m.mu.Lock()
	if m.state != StateClosed {
		trs = append(trs, m.setStateLocked(StateClosed, "shutdown"))
	}
	if n := m.queue.len(); n > 0 {
		m.logger.Info("discarding queued commands", "count", n)
		m.queue.takeAll()
	}
	m.mu.Unlock()

	for _, tr := range trs {
		m.traceState(tr)
	}

	m.cancel()
	m.wg.Wait()
	return err
}
