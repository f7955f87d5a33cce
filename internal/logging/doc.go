// Package logging assembles structured slog loggers for the watcher.
//
// It owns the console and JSON handlers, picks a format for the attached
// terminal, and exposes context helpers so channel and engine code can tag
// log lines with job, provider, and channel session identifiers. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
