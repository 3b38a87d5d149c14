package connection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// ErrQueueFull is returned by Send when a bounded queue rejects a command.
var ErrQueueFull = errors.New("outbound queue full")

// Overflow selects what a bounded queue does when it is full.
type Overflow uint8

const (
	// OverflowRejectNewest refuses the new command with ErrQueueFull.
	OverflowRejectNewest Overflow = iota

	// OverflowDropOldest evicts the head of the queue to make room.
	OverflowDropOldest
)

// String returns the policy name used in configuration.
func (o Overflow) String() string {
	switch o {
	case OverflowRejectNewest:
		return "reject-newest"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseOverflow parses a policy name.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject-newest", "reject":
		return OverflowRejectNewest, nil
	case "drop-oldest", "drop":
		return OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// QueueConfig bounds the outbound queue.
type QueueConfig struct {
	// Capacity is the maximum number of queued commands. Zero means unbounded.
	Capacity int

	// Overflow applies when Capacity is reached.
	Overflow Overflow
}

// outboundQueue is a FIFO of envelopes. Not safe for concurrent use; the
// manager guards it.
type outboundQueue struct {
	cfg   QueueConfig
	items []wire.Envelope
}

// push appends env. It returns the evicted envelope, if any, or ErrQueueFull.
func (q *outboundQueue) push(env wire.Envelope) (evicted *wire.Envelope, err error) {
	if q.cfg.Capacity > 0 && len(q.items) >= q.cfg.Capacity {
		switch q.cfg.Overflow {
		case OverflowDropOldest:
			head := q.items[0]
			q.items = q.items[1:]
			evicted = &head
		default:
			return nil, ErrQueueFull
		}
	}
	q.items = append(q.items, env)
	return evicted, nil
}

// takeAll empties the queue and returns its contents in FIFO order.
func (q *outboundQueue) takeAll() []wire.Envelope {
	items := q.items
	q.items = nil
	return items
}

// restore puts unsent envelopes back at the front, ahead of anything queued
// since they were taken. Capacity is not enforced here; nothing is lost.
func (q *outboundQueue) restore(unsent []wire.Envelope) {
	if len(unsent) == 0 {
		return
	}
	items := make([]wire.Envelope, 0, len(unsent)+len(q.items))
	items = append(items, unsent...)
	items = append(items, q.items...)
	q.items = items
}

func (q *outboundQueue) len() int {
	return len(q.items)
}

func (q *outboundQueue) snapshot() []wire.Envelope {
	out := make([]wire.Envelope, len(q.items))
	copy(out, q.items)
	return out
}
