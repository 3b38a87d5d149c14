package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
)

// exportRecord is the flat JSONL form of an event.
type exportRecord struct {
	Timestamp    string          `json:"timestamp"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Direction    string          `json:"direction"`
	Category     string          `json:"category"`
	Role         string          `json:"role"`
	Endpoint     string          `json:"endpoint,omitempty"`
	Type         string          `json:"type,omitempty"`
	Size         int             `json:"size,omitempty"`
	Queued       bool            `json:"queued,omitempty"`
	Truncated    bool            `json:"truncated,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	OldState     string          `json:"old_state,omitempty"`
	NewState     string          `json:"new_state,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorContext string          `json:"error_context,omitempty"`
}

func toRecord(event msglog.Event) exportRecord {
	rec := exportRecord{
		Timestamp:    event.Timestamp.UTC().Format(timestampLayout),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Category:     event.Category.String(),
		Role:         event.LocalRole.String(),
		Endpoint:     event.Endpoint,
	}
	switch {
	case event.Message != nil:
		rec.Type = event.Message.Type
		rec.Size = event.Message.Size
		rec.Queued = event.Message.Queued
		rec.Truncated = event.Message.Truncated
		// A truncated body is no longer valid JSON; keep it as a string.
		if json.Valid(event.Message.Payload) {
			rec.Payload = json.RawMessage(event.Message.Payload)
		} else if len(event.Message.Payload) > 0 {
			quoted, _ := json.Marshal(string(event.Message.Payload))
			rec.Payload = quoted
		}
	case event.StateChange != nil:
		rec.OldState = event.StateChange.OldState
		rec.NewState = event.StateChange.NewState
		rec.Reason = event.StateChange.Reason
	case event.Error != nil:
		rec.Error = event.Error.Message
		rec.ErrorContext = event.Error.Context
	}
	return rec
}

// RunExport exports the events of path matching filter in format to output,
// or to stdout when output is empty.
func RunExport(path, format, output string, filter msglog.Filter) error {
	var newExporter func(io.Writer) (exporter, error)
	switch format {
	case "jsonl":
		newExporter = newJSONLExporter
	case "csv":
		newExporter = newCSVExporter
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	exp, err := newExporter(w)
	if err != nil {
		return err
	}
	if err := msglog.Scan(path, filter, exp.write); err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	return exp.flush()
}

type exporter interface {
	write(msglog.Event) error
	flush() error
}

type jsonlExporter struct {
	enc *json.Encoder
}

func newJSONLExporter(w io.Writer) (exporter, error) {
	return jsonlExporter{enc: json.NewEncoder(w)}, nil
}

func (e jsonlExporter) write(event msglog.Event) error {
	if err := e.enc.Encode(toRecord(event)); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

func (jsonlExporter) flush() error { return nil }

type csvExporter struct {
	cw *csv.Writer
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "category", "role", "type", "size", "queued", "detail"}

func newCSVExporter(w io.Writer) (exporter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return csvExporter{cw: cw}, nil
}

func (e csvExporter) write(event msglog.Event) error {
	rec := toRecord(event)
	detail := string(rec.Payload)
	switch {
	case rec.NewState != "":
		detail = rec.OldState + "->" + rec.NewState
	case rec.Error != "":
		detail = rec.Error
	}

	row := []string{
		rec.Timestamp,
		rec.ConnectionID,
		rec.Direction,
		rec.Category,
		rec.Role,
		eventLabel(event),
		strconv.Itoa(rec.Size),
		strconv.FormatBool(rec.Queued),
		detail,
	}
	if err := e.cw.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (e csvExporter) flush() error {
	e.cw.Flush()
	return e.cw.Error()
}
