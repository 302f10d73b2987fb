package ravana

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is used by clients that are not given one of their own. It logs at
// info level and above by default.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	).With().Timestamp().Caller().Logger().Level(zerolog.InfoLevel)
}

// ParseLevel maps the command line level names onto zerolog levels.
func ParseLevel(name string) (zerolog.Level, error) {
	switch name {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, invalidArgf("log level %q", name)
}
