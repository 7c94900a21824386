// Package logging assembles the slog loggers used by the CLI.
//
// It owns the console and JSON handlers, level parsing, and the redacting
// wrapper that scrubs registered credential values from every record before
// it reaches a handler. A no-op logger is provided for tests and for wiring
// code that runs before configuration is available.
package logging
