// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects how log lines are written
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// ParseFormat maps a flag or config value to a Format. Anything other than
// "console" or "pretty" is JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console", "pretty":
		return FormatConsole
	}
	return FormatJSON
}

// NewWriter returns the output for format. Console output is human readable
// and meant for development; JSON is for log shippers.
func NewWriter(out io.Writer, format Format) io.Writer {
	if format == FormatConsole {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return out
}

// Setup points the global logger at stderr and sets the level. Debug mode
// switches to console output and debug level.
func Setup(debug bool, format string) {
	f := ParseFormat(format)
	if debug && format == "" {
		f = FormatConsole
	}
	Configure(os.Stderr, f, debug)
}

// Configure is Setup with an explicit destination
func Configure(out io.Writer, format Format, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(NewWriter(out, format)).With().Timestamp().Logger()

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
