// Package msglog records the envelopes exchanged with the backend.
//
// Two sinks live here. The Ring is the bounded, newest-first message log the
// console shows its operator. The Logger interface and its Event type capture
// a complete machine-readable protocol trace for offline debugging; it is
// separate from operational logging (slog).
//
// # Basic Usage
//
//	// For development: trace to console via slog
//	cfg.ProtocolLogger = msglog.NewSlogAdapter(slog.Default())
//
//	// For offline analysis: write to a binary file
//	cfg.ProtocolLogger, _ = msglog.NewFileLogger("/var/log/vconsole/device.vlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = msglog.NewMultiLogger(
//	    msglog.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Ring Capacity
//
// Append truncates the previous contents to the nominal capacity and then
// prepends, so a ring of capacity 20 holds at most 21 entries. Consoles in
// the field have always shown that many; keep it unless the operators agree
// to change it.
//
// # File Format
//
// Trace files are a stream of CBOR events with the .vlog extension. The
// vconsole-log CLI provides viewing, filtering and statistics.
package msglog
