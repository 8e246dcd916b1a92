package unittest

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger returns a zerolog console logger for tests. Output is discarded
// unless VERBOSE_LOGGING is set in the environment.
func Logger() zerolog.Logger {
	writer := io.Discard
	if os.Getenv("VERBOSE_LOGGING") != "" {
		writer = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: writer}).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
}
