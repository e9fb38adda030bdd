// Package migrationlog builds the zerolog logger used by the CLI and adapts
// it to the key/value logging interface of the migration core.
package migrationlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures a Logger. A nil Writer means stderr.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// Logger writes structured migration logs through zerolog.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger. Auto format uses the console writer when colored
// terminal output is available and JSON lines otherwise.
func New(opts Options) (*Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if !color.NoColor {
			format = FormatConsole
		}
	}

	switch format {
	case FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: color.NoColor}
	default:
		return nil, fmt.Errorf("invalid log format %q (want auto, console or json)", opts.Format)
	}

	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}, nil
}

// Info logs msg with alternating key/value pairs.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.zl.Info().Fields(kv).Msg(msg)
}

// Warn logs msg with alternating key/value pairs.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.zl.Warn().Fields(kv).Msg(msg)
}

// Error logs msg with alternating key/value pairs.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.zl.Error().Fields(kv).Msg(msg)
}

// Debug is not part of the core interface; the CLI uses it for request tracing.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.zl.Debug().Fields(kv).Msg(msg)
}
