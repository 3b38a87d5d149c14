package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
)

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case LogLevelError:
		return slog.LevelError, nil
	case LogLevelWarn, "warning":
		return slog.LevelWarn, nil
	case LogLevelInfo, "":
		return slog.LevelInfo, nil
	case LogLevelDebug:
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (must be debug, info, warn or error)", s)
	}
}

func initLogger(logLevel string, w io.Writer) *slog.Logger {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// switchWriter forwards to a writer that can be replaced after the logger
// is built.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
