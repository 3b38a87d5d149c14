package transport

import "time"

// Ping defaults for WebSocket channels. A channel that sees neither a pong
// nor a frame for DetectionDelay is considered dead.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3

	// MaxDetectionDelay is DetectionDelay for the defaults (30s*3 + 5s).
	MaxDetectionDelay = 95 * time.Second
)

// KeepAliveConfig controls WebSocket pings and the read deadline derived
// from them.
type KeepAliveConfig struct {
	// Disabled turns off pings and the read deadline. Test backends that
	// never answer pings set this.
	Disabled bool

	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the ping defaults.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{}.withDefaults()
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// DetectionDelay is the read deadline of a channel. Every pong and every
// received frame pushes it forward.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}
