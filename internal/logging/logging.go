// Package logging wraps zerolog behind a process-wide logger. Every
// component logs through Logger; nothing writes to stdout directly.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level aliases for configuration.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Logger is the process-wide logger. Defaults to info-level console output
// until Init configures it.
var Logger = newLogger(DefaultConfig())

// Config controls the logger's output.
type Config struct {
	Level  zerolog.Level
	Pretty bool   // human-readable console output instead of JSON
	File   string // append to this file instead of stderr when set
}

// DefaultConfig is pretty console output at info level.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Pretty: true}
}

// Init reconfigures the process-wide logger.
func Init(cfg Config) {
	Logger = newLogger(cfg)
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func newLogger(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	} else if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// Debug starts a debug-level event on the process logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info-level event on the process logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn-level event on the process logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error-level event on the process logger.
func Error() *zerolog.Event { return Logger.Error() }
