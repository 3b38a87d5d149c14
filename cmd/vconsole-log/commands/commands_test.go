package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

var ts = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []msglog.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+msglog.FileExtension)

	logger, err := msglog.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

// sessionEvents is a short device session: the channel opens, an ENROLL goes
// out, the backend answers with a snapshot, then the channel drops.
func sessionEvents() []msglog.Event {
	snapshot, _ := wire.NewEnvelope(wire.TypeDeviceUpdated, map[string]any{"status": "WITH_ID"})
	return []msglog.Event{
		{
			Timestamp: ts, ConnectionID: "conn-abcdef12", Direction: msglog.DirectionOut,
			Category: msglog.CategoryState, Endpoint: "ws://localhost:7002/ws",
			StateChange: &msglog.StateChangeEvent{OldState: "CONNECTING", NewState: "OPEN"},
		},
		{
			Timestamp: ts.Add(time.Second), ConnectionID: "conn-abcdef12", Direction: msglog.DirectionOut,
			Category: msglog.CategoryMessage,
			Message:  msglog.NewMessageEvent(wire.Enroll("default"), true),
		},
		{
			Timestamp: ts.Add(2 * time.Second), ConnectionID: "conn-abcdef12", Direction: msglog.DirectionIn,
			Category: msglog.CategoryMessage,
			Message:  msglog.NewMessageEvent(snapshot, false),
		},
		{
			Timestamp: ts.Add(3 * time.Second), ConnectionID: "conn-abcdef12", Direction: msglog.DirectionIn,
			Category: msglog.CategoryError,
			Error:    &msglog.ErrorEventData{Message: "connection reset", Context: "receive"},
		},
	}
}

func TestViewFormatsEvents(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunView(path, msglog.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z [conn:conn-abc] OUT",
		"CONNECTING -> OPEN",
		"Endpoint: ws://localhost:7002/ws",
		"ENROLL",
		"(queued)",
		`"slot_id":"default"`,
		"DEVICE_UPDATED",
		"Message: connection reset",
		"Context: receive",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestViewFiltersByType(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	filter, err := BuildFilter(FilterOptions{Type: string(wire.TypeEnroll)})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "DEVICE_UPDATED") || strings.Contains(out, "OPEN") {
		t.Errorf("unexpected events in output:\n%s", out)
	}
	if !strings.Contains(out, "ENROLL") {
		t.Errorf("expected ENROLL in output:\n%s", out)
	}
}

func TestViewQueuedOnly(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunView(path, msglog.Filter{QueuedOnly: true}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "ENROLL") || strings.Contains(out, "DEVICE_UPDATED") || strings.Contains(out, "connection reset") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestViewMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunView(filepath.Join(t.TempDir(), "missing.vlog"), msglog.Filter{}, &buf); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBuildFilter(t *testing.T) {
	filter, err := BuildFilter(FilterOptions{
		Direction: "IN",
		Category:  "error",
		TimeStart: "2026-01-28T10:00:00Z",
		TimeEnd:   "2026-01-28T11:00:00Z",
	})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}
	if filter.Direction == nil || *filter.Direction != msglog.DirectionIn {
		t.Error("direction not set")
	}
	if filter.Category == nil || *filter.Category != msglog.CategoryError {
		t.Error("category not set")
	}
	if filter.Since.IsZero() || filter.Until.IsZero() {
		t.Error("time range not set")
	}

	filter, err = BuildFilter(FilterOptions{Type: "enroll, DEVICE_UPDATED", Role: "dms", Queued: true})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}
	if len(filter.Types) != 2 || filter.Types[0] != "ENROLL" || filter.Types[1] != "DEVICE_UPDATED" {
		t.Errorf("Types = %v", filter.Types)
	}
	if filter.Role == nil || *filter.Role != msglog.RoleDMS || !filter.QueuedOnly {
		t.Errorf("role/queued not set: %+v", filter)
	}

	for _, opts := range []FilterOptions{
		{Direction: "sideways"},
		{Category: "snapshot"},
		{TimeStart: "yesterday"},
		{TimeEnd: "28/01/2026"},
		{Role: "gateway"},
	} {
		if _, err := BuildFilter(opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}
}

func TestFilterWritesMatchingEvents(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	output := filepath.Join(t.TempDir(), "in.vlog")

	filter, err := BuildFilter(FilterOptions{Direction: "in"})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RunFilter(path, output, filter, &buf); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected summary: %s", buf.String())
	}

	stats, err := CollectStats(output)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.TotalEvents != 2 || stats.EventsByDirection[msglog.DirectionIn] != 2 {
		t.Errorf("filtered file has %d events (%d IN), want 2 IN", stats.TotalEvents, stats.EventsByDirection[msglog.DirectionIn])
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	output := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", output, msglog.Filter{}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}

	enroll := records[1]
	if enroll["type"] != "ENROLL" || enroll["queued"] != true {
		t.Errorf("unexpected ENROLL record: %v", enroll)
	}
	payload, ok := enroll["payload"].(map[string]any)
	if !ok || payload["slot_id"] != "default" {
		t.Errorf("payload not embedded as JSON: %v", enroll["payload"])
	}
	if records[0]["new_state"] != "OPEN" {
		t.Errorf("unexpected state record: %v", records[0])
	}
}

func TestExportTruncatedPayloadAsString(t *testing.T) {
	rec := toRecord(msglog.Event{
		Timestamp: ts,
		Category:  msglog.CategoryMessage,
		Message:   &msglog.MessageEvent{Type: "DEVICE_UPDATED", Payload: []byte(`{"status":"WI`), Truncated: true},
	})
	var s string
	if err := json.Unmarshal(rec.Payload, &s); err != nil {
		t.Fatalf("payload is not a JSON string: %v", err)
	}
	if s != `{"status":"WI` {
		t.Errorf("payload = %q", s)
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	output := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", output, msglog.Filter{}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header + 4", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][8] != "CONNECTING->OPEN" {
		t.Errorf("unexpected state detail: %q", rows[1][8])
	}
	if rows[4][8] != "connection reset" {
		t.Errorf("unexpected error detail: %q", rows[4][8])
	}
}

func TestExportMissingFileCreatesNoOutput(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out.jsonl")
	if err := RunExport(filepath.Join(t.TempDir(), "missing.vlog"), "jsonl", output, msglog.Filter{}); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("output file created: %v", err)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	if err := RunExport(path, "xml", "", msglog.Filter{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStats(t *testing.T) {
	events := sessionEvents()
	events = append(events, msglog.Event{
		Timestamp: ts.Add(time.Minute), ConnectionID: "conn-99999999", LocalRole: msglog.RoleDMS,
		Category: msglog.CategoryMessage, Direction: msglog.DirectionOut,
		Message: msglog.NewMessageEvent(wire.GetConfig(), false),
	})
	path := createTestLogFile(t, events)

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", stats.TotalEvents)
	}
	if stats.MessagesByType["ENROLL"] != 1 || stats.MessagesByType["GET_CFG"] != 1 {
		t.Errorf("MessagesByType = %v", stats.MessagesByType)
	}
	if stats.Queued != 1 || stats.Errors != 1 {
		t.Errorf("Queued = %d, Errors = %d", stats.Queued, stats.Errors)
	}
	if len(stats.Connections) != 2 {
		t.Errorf("Connections = %d, want 2", len(stats.Connections))
	}
	if got := stats.Connections["conn-abcdef12"].LastState; got != "OPEN" {
		t.Errorf("LastState = %q", got)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	out := buf.String()
	for _, want := range []string{"Total Events: 5", "GET_CFG:", "(1 sent while disconnected)", "[conn-abc] DEVICE", "[conn-999] DMS", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
