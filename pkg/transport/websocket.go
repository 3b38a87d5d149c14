package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultHandshakeTimeout bounds the WebSocket opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultMaxMessageSize is the largest frame accepted from the peer.
	DefaultMaxMessageSize = 1 << 20

	writeWait = 10 * time.Second
)

// WebSocketDialer dials WebSocket channels.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the opening handshake (default: 10s).
	HandshakeTimeout time.Duration

	// Header is sent with the upgrade request.
	Header http.Header

	// MaxMessageSize is the largest accepted inbound frame (default: 1 MiB).
	MaxMessageSize int64

	// KeepAlive configures ping/pong liveness checks.
	KeepAlive KeepAliveConfig
}

// NewWebSocketDialer creates a dialer with default settings.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxMessageSize:   DefaultMaxMessageSize,
		KeepAlive:        DefaultKeepAliveConfig(),
	}
}

// Dial opens a channel to endpoint (ws:// or wss:// URL).
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	handshake := d.HandshakeTimeout
	if handshake == 0 {
		handshake = DefaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	maxSize := d.MaxMessageSize
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	conn.SetReadLimit(maxSize)

	return newWSChannel(conn, d.KeepAlive), nil
}

// wsChannel is a Channel over one WebSocket connection.
type wsChannel struct {
	conn      *websocket.Conn
	keepAlive KeepAliveConfig
	closeCh   chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
}

func newWSChannel(conn *websocket.Conn, ka KeepAliveConfig) *wsChannel {
	c := &wsChannel{
		conn:      conn,
		keepAlive: ka,
		closeCh:   make(chan struct{}),
	}

	if !ka.Disabled {
		c.keepAlive = ka.withDefaults()
		c.extendDeadline()
		conn.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
		go c.pingLoop()
	}

	return c
}

func (c *wsChannel) extendDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.keepAlive.DetectionDelay()))
}

func (c *wsChannel) pingLoop() {
	ticker := time.NewTicker(c.keepAlive.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			// A failed ping surfaces as a read error once the deadline passes.
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.keepAlive.PongTimeout))
		}
	}
}

// Send writes data as one text frame.
func (c *wsChannel) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrChannelClosed
	default:
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive returns the next data frame. Normal closures and local Close map
// to ErrChannelClosed; any other failure is returned wrapped.
func (c *wsChannel) Receive() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				return nil, ErrChannelClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrChannelClosed
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if !c.keepAlive.Disabled {
			c.extendDeadline()
		}
		return data, nil
	}
}

// Close sends a close frame and closes the connection.
func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	return err
}
