package msglog

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// DefaultCapacity is the nominal capacity of the message log and the MQTT log.
const DefaultCapacity = 20

// Entry is one envelope in the message log.
type Entry struct {
	// Origin is IN for server pushes and OUT for commands (sent or queued).
	Origin wire.Origin

	// Timestamp is the local receipt or send time.
	Timestamp time.Time

	// Envelope is the frame as exchanged on the wire.
	Envelope wire.Envelope

	// Raw holds an inbound frame that is not an envelope. Envelope is zero
	// in that case.
	Raw []byte
}

// Undecodable reports whether the entry is a raw frame without envelope.
func (e Entry) Undecodable() bool {
	return e.Envelope.Type == "" && e.Raw != nil
}

// Ring is a bounded newest-first log.
//
// Each mutation publishes a new slice; readers get the published slice
// without taking the writer lock, so a reader never sees a partial update.
type Ring[T any] struct {
	capacity int

	mu       sync.Mutex // serializes writers
	items    atomic.Pointer[[]T]
	revision atomic.Uint64
}

// NewRing creates a ring with the given nominal capacity.
// A capacity <= 0 uses DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Ring[T]{capacity: capacity}
	empty := []T{}
	r.items.Store(&empty)
	return r
}

// NewMessageLog creates the envelope log with DefaultCapacity.
func NewMessageLog() *Ring[Entry] {
	return NewRing[Entry](DefaultCapacity)
}

// Append places item at the head. The previous contents are first truncated
// to the nominal capacity, so the live size never exceeds capacity+1.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := *r.items.Load()
	if len(prev) > r.capacity {
		prev = prev[:r.capacity]
	}

	next := make([]T, 0, len(prev)+1)
	next = append(next, item)
	next = append(next, prev...)

	r.items.Store(&next)
	r.revision.Add(1)
}

// Clear empties the ring.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	empty := []T{}
	r.items.Store(&empty)
	r.revision.Add(1)
}

// Entries returns a copy of the contents, newest first.
func (r *Ring[T]) Entries() []T {
	return slices.Clone(*r.items.Load())
}

// Head returns the newest item.
func (r *Ring[T]) Head() (T, bool) {
	items := *r.items.Load()
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

// Len returns the number of live items.
func (r *Ring[T]) Len() int {
	return len(*r.items.Load())
}

// Capacity returns the nominal capacity.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Revision increases on every mutation.
func (r *Ring[T]) Revision() uint64 {
	return r.revision.Load()
}
