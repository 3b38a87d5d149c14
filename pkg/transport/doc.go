// Package transport provides the duplex message channel between a console
// and its virtual device or DMS backend.
//
// The transport layer handles:
//   - WebSocket dialing with a handshake timeout
//   - One text frame per JSON envelope
//   - Keep-alive ping/pong for connection liveness
//   - Serialized writes from concurrent senders
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON Envelopes            │
//	├────────────────────────────────┤
//	│   WebSocket text frames        │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Wire security is out of scope; endpoints are plain ws:// URLs in the
// simulation environment, although wss:// works unchanged.
//
// # Keep-Alive
//
// Liveness is monitored with WebSocket ping control frames:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
//   - Maximum detection delay: 95 seconds
package transport
