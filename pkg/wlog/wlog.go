// Package wlog provides the structured logger used across wclaphost,
// wrapping zerolog the same way the rest of the retrieval pack does:
// one global base logger, component sub-loggers tagged with a field.
package wlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Base is the process-wide logger every component logger derives from.
var Base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	Base = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Configure sets the global log level and switches Base to a pretty
// console writer when pretty is true, for interactive use outside a
// production host process.
func Configure(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := os.Stderr
	if pretty {
		Base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return
	}
	Base = zerolog.New(out).With().Timestamp().Logger()
}

// New returns a logger tagged with the given component name, e.g.
// "guest", "wclap", "plugin", "bridge".
func New(component string) zerolog.Logger {
	return Base.With().Str("component", component).Logger()
}
