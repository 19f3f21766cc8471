// Package logging provides structured, rotating file-based logging for the
// search engine, built on log/slog with JSON output. Every component logs
// through a shared *slog.Logger configured by this package.
package logging
