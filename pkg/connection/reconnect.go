package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReconnectPolicy selects what happens after an unexpected disconnect.
type ReconnectPolicy uint8

const (
	// ReconnectManual leaves the channel CLOSED until RequestReconnect.
	ReconnectManual ReconnectPolicy = iota

	// ReconnectBackoff retries with exponential backoff until OPEN.
	ReconnectBackoff
)

// String returns the policy name used in configuration.
func (p ReconnectPolicy) String() string {
	switch p {
	case ReconnectManual:
		return "manual"
	case ReconnectBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ParseReconnectPolicy parses a policy name.
func ParseReconnectPolicy(s string) (ReconnectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return ReconnectManual, nil
	case "backoff":
		return ReconnectBackoff, nil
	default:
		return 0, fmt.Errorf("unknown reconnect policy %q", s)
	}
}

// BackoffAttempts returns the number of reconnect delays since the last
// successful connection.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// triggerReconnect signals the reconnect loop.
func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

// reconnectLoop runs only under ReconnectBackoff.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect dials with backoff until OPEN, shutdown, or someone else
// reconnects first.
func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateClosed {
			return
		}

		delay := m.backoff.Next()
		m.logger.Info("reconnecting", "attempt", m.backoff.Attempts(), "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := m.RequestReconnect(m.ctx)
		if err == nil || errors.Is(err, ErrReconnectIgnored) || errors.Is(err, ErrManagerClosed) || m.ctx.Err() != nil {
			return
		}
	}
}
