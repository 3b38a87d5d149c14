// Package cell holds observable state values.
//
// One writer swaps whole values in. Any number of readers load the current
// value without locking, and subscribers are told after each swap.
package cell

import (
	"sync"
	"sync/atomic"
)

// snapshot pairs a value with the revision it was stored at.
type snapshot[T any] struct {
	value    T
	revision uint64
}

// Cell is a single observable value.
type Cell[T any] struct {
	current atomic.Pointer[snapshot[T]]

	mu     sync.Mutex // serializes writers and guards subs
	subs   map[uint64]func(T, uint64)
	nextID uint64
}

// New creates a cell holding initial at revision 0.
func New[T any](initial T) *Cell[T] {
	c := &Cell[T]{subs: make(map[uint64]func(T, uint64))}
	c.current.Store(&snapshot[T]{value: initial})
	return c
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	return c.current.Load().value
}

// Snapshot returns the current value with its revision.
func (c *Cell[T]) Snapshot() (T, uint64) {
	s := c.current.Load()
	return s.value, s.revision
}

// Revision returns the number of stores so far.
func (c *Cell[T]) Revision() uint64 {
	return c.current.Load().revision
}

// Store replaces the value and returns the new revision.
func (c *Cell[T]) Store(v T) uint64 {
	return c.Update(func(T) T { return v })
}

// Update replaces the value with fn(current) and returns the new revision.
// Subscribers run after the swap, outside the writer lock, in no particular
// order.
func (c *Cell[T]) Update(fn func(T) T) uint64 {
	c.mu.Lock()
	prev := c.current.Load()
	next := &snapshot[T]{value: fn(prev.value), revision: prev.revision + 1}
	c.current.Store(next)
	subs := make([]func(T, uint64), 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s(next.value, next.revision)
	}
	return next.revision
}

// Subscribe registers fn to be called after every store. The returned
// function removes the subscription.
func (c *Cell[T]) Subscribe(fn func(value T, revision uint64)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}
