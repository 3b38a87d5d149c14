package msglog

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors trace events into an slog.Logger. Messages and state
// changes go out at Debug, errors at Warn.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("conn", shortID(event.ConnectionID)),
		slog.String("dir", event.Direction.String()),
		slog.String("role", event.LocalRole.String()),
	)

	msg := "trace " + event.Category.String()
	switch {
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("type", event.Message.Type),
			slog.Int("bytes", event.Message.Size),
		)
		if event.Message.Queued {
			attrs = append(attrs, slog.Bool("queued", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs, slog.String("transition", event.StateChange.OldState+"->"+event.StateChange.NewState))
		if event.Endpoint != "" {
			attrs = append(attrs, slog.String("endpoint", event.Endpoint))
		}
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("during", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// shortID keeps the first UUID group, enough to tell sessions apart.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ Logger = (*SlogAdapter)(nil)
