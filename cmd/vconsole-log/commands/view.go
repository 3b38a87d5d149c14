// Package commands implements the vconsole-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
)

// timestampLayout is used for every event timestamp the tool prints.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event msglog.Event) {
	ts := event.Timestamp.UTC().Format(timestampLayout)
	connID := shortenConnID(event.ConnectionID)

	fmt.Fprintf(w, "%s [conn:%s] %-3s %-6s %s\n",
		ts, connID, event.Direction, event.LocalRole, eventLabel(event))

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}
	if event.Endpoint != "" && event.StateChange != nil {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}

	fmt.Fprintln(w)
}

// eventLabel names the event: the envelope type for messages.
func eventLabel(event msglog.Event) string {
	switch {
	case event.Message != nil:
		return event.Message.Type
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, msg *msglog.MessageEvent) {
	fmt.Fprintf(w, "  Size: %d bytes", msg.Size)
	if msg.Queued {
		fmt.Fprint(w, " (queued)")
	}
	fmt.Fprintln(w)
	if msg.SentTime != 0 {
		fmt.Fprintf(w, "  Sent: %d\n", msg.SentTime)
	}
	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s", msg.Payload)
		if msg.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *msglog.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *msglog.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (msglog.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return msglog.DirectionIn, nil
	case "out":
		return msglog.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (msglog.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return msglog.CategoryMessage, nil
	case "state":
		return msglog.CategoryState, nil
	case "error":
		return msglog.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// ParseRoleFlag parses the console role of a trace.
func ParseRoleFlag(s string) (msglog.Role, error) {
	switch strings.ToLower(s) {
	case "device":
		return msglog.RoleDevice, nil
	case "dms":
		return msglog.RoleDMS, nil
	default:
		return 0, fmt.Errorf("invalid role: %s (must be device or dms)", s)
	}
}

// RunView prints every event matching filter.
func RunView(path string, filter msglog.Filter, output io.Writer) error {
	err := msglog.Scan(path, filter, func(event msglog.Event) error {
		formatEvent(output, event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	return nil
}
