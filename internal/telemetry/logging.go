// Package telemetry provides the Library core's structured logging and metrics.
package telemetry

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger satisfies the Library core's Logger collaborator interface:
// debug/info/warn/error plus a child(context) that returns a derived logger
// carrying extra structured fields.
type Logger struct {
	z zerolog.Logger
}

// NewLogger builds the root logger. logPath may be empty to disable file
// output (stdout only); level is a zerolog level name, defaulting to "info".
// When a log file is configured, output goes to the file alone so it never
// interleaves with anything else writing to stdout.
func NewLogger(logPath, level string) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}

	lvl := zerolog.InfoLevel
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}

	z := zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()
	return &Logger{z: z}
}

// Noop returns a Logger that discards everything; used when callers don't
// inject one.
func Noop() *Logger {
	return &Logger{z: zerolog.New(io.Discard)}
}

func (l *Logger) Child(fields map[string]any) *Logger {
	return &Logger{z: l.z.With().Fields(fields).Logger()}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.z.Debug().Fields(fields).Msg(msg) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.z.Info().Fields(fields).Msg(msg) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.z.Warn().Fields(fields).Msg(msg) }
func (l *Logger) Error(msg string, fields map[string]any) { l.z.Error().Fields(fields).Msg(msg) }
