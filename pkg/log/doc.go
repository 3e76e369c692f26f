// Package log provides structured session logging for the device
// session controller.
//
// This package defines the Logger interface and Event types for capturing
// session-level events at multiple layers (controller, auth, messenger,
// transport). It is separate from operational logging (slog) - session
// capture provides a complete machine-readable event trace for debugging
// and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation
// (the Logger field of authenticator.Config and messenger.Config):
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/devicesession/device.clog")
//
//	// Both: use MultiLogger
//	fl, _ := log.NewFileLogger("/var/log/devicesession/device.clog")
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fl,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Controller: aggregate state transitions (StateChangeEvent)
//   - Auth: CBS authentication state transitions and errors
//   - Messenger: D2C send completions (SendEvent) and C2D dispositions
//     (DispositionEvent)
//
// Option get/set calls and errors have dedicated event types.
package log
