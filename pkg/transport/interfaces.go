package transport

import (
	"context"
	"errors"
)

// ErrChannelClosed is returned by a Channel after it has been closed locally
// or the peer closed it normally.
var ErrChannelClosed = errors.New("channel closed")

// Channel is an established duplex message channel.
// Implemented by the WebSocket channel returned from WebSocketDialer.
type Channel interface {
	// Send writes one message. Safe for concurrent use.
	Send(data []byte) error

	// Receive blocks until the next message arrives.
	// Only one goroutine may call Receive at a time.
	Receive() ([]byte, error)

	// Close closes the channel. Subsequent calls are no-ops.
	Close() error
}

// Dialer opens channels to an endpoint.
// Implemented by WebSocketDialer.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Channel, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer  = (*WebSocketDialer)(nil)
	_ Channel = (*wsChannel)(nil)
)
