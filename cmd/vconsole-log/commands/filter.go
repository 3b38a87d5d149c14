package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
)

// FilterOptions holds the filter flags shared by view, filter and export.
type FilterOptions struct {
	ConnID    string
	Role      string
	Type      string // comma-separated envelope types
	TimeStart string
	TimeEnd   string
	Direction string
	Category  string
	Queued    bool
}

// BuildFilter converts flag values into a trace filter.
func BuildFilter(opts FilterOptions) (msglog.Filter, error) {
	filter := msglog.Filter{
		ConnectionID: opts.ConnID,
		QueuedOnly:   opts.Queued,
	}
	for _, t := range strings.Split(opts.Type, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.Types = append(filter.Types, strings.ToUpper(t))
		}
	}

	var err error
	if opts.TimeStart != "" {
		if filter.Since, err = time.Parse(time.RFC3339, opts.TimeStart); err != nil {
			return msglog.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
	}
	if opts.TimeEnd != "" {
		if filter.Until, err = time.Parse(time.RFC3339, opts.TimeEnd); err != nil {
			return msglog.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
	}

	if opts.Role != "" {
		r, err := ParseRoleFlag(opts.Role)
		if err != nil {
			return msglog.Filter{}, err
		}
		filter.Role = &r
	}

	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return msglog.Filter{}, err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return msglog.Filter{}, err
		}
		filter.Category = &c
	}

	return filter, nil
}

// RunFilter copies the events of path matching filter into output and
// reports the count on w.
func RunFilter(path, output string, filter msglog.Filter, w io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger, err := msglog.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	err = msglog.Scan(path, filter, func(event msglog.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
