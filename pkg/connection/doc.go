// Package connection owns the console's single channel to its backend.
//
// This package handles:
//   - Readiness tracking (CONNECTING, OPEN, CLOSING, CLOSED)
//   - A FIFO outbound queue for commands issued while not OPEN
//   - A periodic drain checker that flushes the queue once OPEN
//   - Operator-driven reconnection
//   - IN/OUT envelope events for the message router
//
// # Queueing
//
// Send never fails because the channel is down. Commands issued while the
// channel is not OPEN are queued and flushed in enqueue order by the drain
// checker, which polls readiness every second (and is woken immediately when
// the channel opens). At most one checker runs; it stops itself once the
// queue is empty. The queue is unbounded by default; set QueueConfig to cap it
// and pick an overflow policy.
//
// # Reconnection Strategy
//
// By default the manager never reconnects on its own. After an unexpected
// disconnect readiness stays CLOSED until the operator calls
// RequestReconnect, which is ignored in any other state.
//
// With ReconnectBackoff the manager instead retries with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 1s on successful reconnection
//
// # Jitter
//
// To prevent thundering herd when many consoles reconnect to one backend:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
