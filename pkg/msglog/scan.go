package msglog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
)

// Filter selects trace events. The zero Filter keeps everything; each set
// field narrows the selection.
type Filter struct {
	ConnectionID string
	Role         *Role
	Direction    *Direction
	Category     *Category

	// Types keeps message events whose envelope type is listed.
	Types []string

	// QueuedOnly keeps commands that were issued while the channel was not
	// open.
	QueuedOnly bool

	// Since and Until bound the event time, Until exclusive. Zero values
	// leave the range open.
	Since time.Time
	Until time.Time
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	switch {
	case f.ConnectionID != "" && e.ConnectionID != f.ConnectionID:
		return false
	case f.Role != nil && e.LocalRole != *f.Role:
		return false
	case f.Direction != nil && e.Direction != *f.Direction:
		return false
	case f.Category != nil && e.Category != *f.Category:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && !e.Timestamp.Before(f.Until):
		return false
	}
	if len(f.Types) > 0 && (e.Message == nil || !slices.Contains(f.Types, e.Message.Type)) {
		return false
	}
	if f.QueuedOnly && (e.Message == nil || !e.Message.Queued) {
		return false
	}
	return true
}

// Scan decodes the trace file at path and calls fn for every event that
// matches filter, in file order. An error from fn stops the scan and is
// returned as is.
func Scan(path string, filter Filter, fn func(Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := NewDecoder(f)
	for n := 0; ; n++ {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("event %d: %w", n, err)
		}
		if !filter.Match(e) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
