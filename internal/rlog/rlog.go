// Package rlog wires the process-wide zerolog logger used by every
// component of the reactor.
package rlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Init must be called once during
// process startup before any component constructs a child logger.
var Logger zerolog.Logger

// Level is a human-readable log level accepted from configuration.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how the global logger is constructed.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the owning component's
// name, matching the "component" field every reactor component logs under.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPeer returns a child logger tagged with a remote peer's node ID,
// mirroring the peer_id span field attached to connection tasks.
func WithPeer(nodeID string) zerolog.Logger {
	return Logger.With().Str("peer_id", nodeID).Logger()
}

func init() {
	// Sensible default so packages that log before Init runs (e.g. in tests)
	// do not panic on a zero-value logger.
	Init(Config{Level: InfoLevel})
}
