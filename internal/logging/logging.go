// Package logging builds the zerolog loggers used across the migration.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects how log lines are rendered.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Build describes a logger to construct.
type Build struct {
	writer io.Writer
	level  zerolog.Level
	format Format
}

// New starts a build writing human-readable lines to stdout at info level.
func New() *Build {
	return &Build{writer: os.Stdout, level: zerolog.InfoLevel, format: FormatConsole}
}

// To redirects output.
func (b *Build) To(w io.Writer) *Build {
	b.writer = w
	return b
}

// Level sets the minimum level from its name; unknown names keep info.
func (b *Build) Level(name string) *Build {
	b.level = ParseLevel(name)
	return b
}

// Format selects console or JSON output; anything else means console.
func (b *Build) Format(f string) *Build {
	if Format(strings.ToLower(f)) == FormatJSON {
		b.format = FormatJSON
	} else {
		b.format = FormatConsole
	}
	return b
}

// Make returns the configured logger.
func (b *Build) Make() zerolog.Logger {
	w := b.writer
	if b.format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: b.writer, TimeFormat: time.TimeOnly, NoColor: !isTerminal(b.writer)}
	}
	return zerolog.New(w).Level(b.level).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
