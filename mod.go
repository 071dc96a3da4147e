// Package porw is the root of the PoRW node module. It holds the global
// logger shared by the engine components, which derive their own sub-loggers
// from it.
package porw

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)

// SetLogLevel changes the level of the global logger.
func SetLogLevel(level zerolog.Level) {
	Logger = Logger.Level(level)
}
