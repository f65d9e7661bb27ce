// Package logging builds the structured slog loggers used by archiveprep.
//
// Logs go to stderr so that stdout stays reserved for command output and the
// --json envelope.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	EnvLevel  = "ARCHIVEPREP_LOG_LEVEL"
	EnvFormat = "ARCHIVEPREP_LOG_FORMAT"
)

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format represents a log output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseLevel maps debug|info|warn|error to a Level; anything else is warn.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "error":
		return LevelError
	default:
		return LevelWarn
	}
}

func ParseFormat(value string) Format {
	if strings.EqualFold(strings.TrimSpace(value), "json") {
		return FormatJSON
	}
	return FormatText
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New returns a logger writing to w. A nil writer yields a discarding logger.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	if w == nil {
		return Discard()
	}
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// FromEnv builds the stderr logger configured by ARCHIVEPREP_LOG_LEVEL and
// ARCHIVEPREP_LOG_FORMAT.
func FromEnv(lookup func(string) (string, bool)) *slog.Logger {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	level, _ := lookup(EnvLevel)
	format, _ := lookup(EnvFormat)
	return New(os.Stderr, ParseLevel(level), ParseFormat(format))
}

func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
