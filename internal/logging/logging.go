// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger configured for the given environment. Development
// gets human-readable console output at debug level; anything else gets
// JSON at info level.
func New(environment string) zerolog.Logger {
	var out io.Writer = os.Stderr
	level := zerolog.InfoLevel

	if strings.EqualFold(environment, "development") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}
