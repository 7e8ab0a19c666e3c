// Package logging constructs the slog loggers used throughout revq.
//
// Loggers write to stderr and, when a log directory is configured, tee into
// revq.log inside it. Console format is human-oriented text; json format is
// one object per line for ingestion.
package logging
