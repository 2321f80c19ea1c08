package quakescan

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogFormat selects how log records are rendered.
type LogFormat int

const (
	LogFormatConsole LogFormat = iota
	LogFormatJSON
)

// LoggerConfig controls construction of the package-wide Logger.
type LoggerConfig struct {
	Level  zerolog.Level
	Format LogFormat
	Output io.Writer
}

// DefaultLoggerConfig returns an info-level, console-formatted logger
// writing to stderr.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:  zerolog.InfoLevel,
		Format: LogFormatConsole,
		Output: os.Stderr,
	}
}

// Logger wraps zerolog so every component along the scan -> trigger -> locate
// pipeline shares one structured sink. Aborted events are logged with
// event_id/reason fields attached, never dropped silently.
type Logger struct {
	zerolog.Logger
}

// NewLogger constructs a Logger from the supplied LoggerConfig.
func NewLogger(cfg LoggerConfig) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if cfg.Format == LogFormatConsole {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(writer).With().Timestamp().Logger().Level(cfg.Level)

	return Logger{Logger: l}
}

// Aborted records that an event (or an entire run, with id "") was aborted
// and why, fulfilling the "nothing silently dropped" guarantee.
func (l Logger) Aborted(eventID string, reason error) {
	l.Error().Str("event_id", eventID).Err(reason).Msg("aborted")
}
