package msglog

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

type recordingLogger struct {
	events []Event
}

func (m *recordingLogger) Log(event Event) {
	m.events = append(m.events, event)
}

func writeTrace(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traces", "test"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Logging after close is ignored.
	logger.Log(Event{ConnectionID: "late"})
	return path
}

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	var out []Event
	err := Scan(path, filter, func(e Event) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return out
}

func TestEventRoundTripThroughFile(t *testing.T) {
	env := wire.Enroll("default")
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)

	path := writeTrace(t, []Event{
		{
			Timestamp:    now,
			ConnectionID: "conn-1",
			Direction:    DirectionOut,
			Category:     CategoryMessage,
			LocalRole:    RoleDMS,
			Endpoint:     "ws://localhost:7002",
			Message:      NewMessageEvent(env, true),
		},
	})

	events := readAll(t, path, Filter{})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if !got.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
	}
	if got.LocalRole != RoleDMS || got.Endpoint != "ws://localhost:7002" {
		t.Errorf("role/endpoint = %v/%q", got.LocalRole, got.Endpoint)
	}
	if got.Message == nil {
		t.Fatal("Message is nil")
	}
	if got.Message.Type != "ENROLL" || !got.Message.Queued {
		t.Errorf("Message = %+v", got.Message)
	}
	if !json.Valid(got.Message.Payload) {
		t.Errorf("payload %q is not JSON", got.Message.Payload)
	}
}

func TestNewMessageEventTruncates(t *testing.T) {
	big := `{"certificate":"` + strings.Repeat("A", MaxPayloadSize) + `"}`
	ev := NewMessageEvent(wire.Envelope{Type: wire.TypeDeviceUpdated, Message: json.RawMessage(big)}, false)

	if !ev.Truncated {
		t.Error("expected Truncated")
	}
	if len(ev.Payload) != MaxPayloadSize {
		t.Errorf("payload len = %d, want %d", len(ev.Payload), MaxPayloadSize)
	}
	if ev.Size != len(big) {
		t.Errorf("Size = %d, want %d", ev.Size, len(big))
	}
}

func TestScanFilters(t *testing.T) {
	base := time.Now()
	in, out := DirectionIn, DirectionOut
	state := CategoryState
	dms := RoleDMS

	path := writeTrace(t, []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionOut, Category: CategoryMessage,
			Message: &MessageEvent{Type: "ENROLL", Queued: true}},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Direction: DirectionIn, Category: CategoryMessage,
			Message: &MessageEvent{Type: "ENROLLING_PROCESS_UPDATE"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", LocalRole: RoleDMS, Direction: DirectionIn, Category: CategoryState,
			StateChange: &StateChangeEvent{OldState: "CONNECTING", NewState: "OPEN"}},
	})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 3},
		{"Connection", Filter{ConnectionID: "a"}, 2},
		{"Role", Filter{Role: &dms}, 1},
		{"DirectionIn", Filter{Direction: &in}, 2},
		{"DirectionOut", Filter{Direction: &out}, 1},
		{"Category", Filter{Category: &state}, 1},
		{"OneType", Filter{Types: []string{"ENROLL"}}, 1},
		{"TwoTypes", Filter{Types: []string{"ENROLL", "ENROLLING_PROCESS_UPDATE"}}, 2},
		{"QueuedOnly", Filter{QueuedOnly: true}, 1},
		{"Since", Filter{Since: base.Add(500 * time.Millisecond)}, 2},
		{"UntilExclusive", Filter{Until: base.Add(time.Second)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(readAll(t, path, tt.filter)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestScanStopsOnCallbackError(t *testing.T) {
	now := time.Now()
	path := writeTrace(t, []Event{{Timestamp: now, ConnectionID: "a"}, {Timestamp: now, ConnectionID: "b"}})
	stop := errors.New("stop")

	seen := 0
	err := Scan(path, Filter{}, func(Event) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) || seen != 1 {
		t.Errorf("err = %v, seen = %d", err, seen)
	}

	if err := Scan(filepath.Join(t.TempDir(), "missing.vlog"), Filter{}, func(Event) error { return nil }); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	multi := NewMultiLogger(a, nil, b)

	multi.Log(Event{ConnectionID: "x"})

	for i, l := range []*recordingLogger{a, b} {
		if len(l.events) != 1 || l.events[0].ConnectionID != "x" {
			t.Errorf("logger %d got %v", i, l.events)
		}
	}

	// Empty and noop loggers must not panic.
	NewMultiLogger().Log(Event{})
	NoopLogger{}.Log(Event{})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	adapter.Log(Event{
		ConnectionID: "conn-9",
		Direction:    DirectionIn,
		Category:     CategoryState,
		StateChange:  &StateChangeEvent{OldState: "OPEN", NewState: "CLOSED", Reason: "peer closed"},
	})

	adapter.Log(Event{
		ConnectionID: "0f2c6a1e-5b7d-4c1a-9e3f-2a4b6c8d0e1f",
		LocalRole:    RoleDMS,
		Category:     CategoryError,
		Error:        &ErrorEventData{Message: "decode failed", Context: "receive"},
	})

	out := buf.String()
	for _, want := range []string{
		"conn=conn-9", "transition=OPEN->CLOSED", `reason="peer closed"`, `msg="trace STATE"`,
		"level=WARN", "conn=0f2c6a1e ", "role=DMS", `error="decode failed"`, "during=receive",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	if DirectionOf(wire.OriginOut) != DirectionOut || DirectionOf(wire.OriginIn) != DirectionIn {
		t.Error("DirectionOf mismatch")
	}
	if CategoryError.String() != "ERROR" || Category(9).String() != "UNKNOWN" {
		t.Error("Category strings")
	}
	if RoleDevice.String() != "DEVICE" || RoleDMS.String() != "DMS" {
		t.Error("Role strings")
	}
}
