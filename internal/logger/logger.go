package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Service is attached to every log line so shipped logs can be told apart
// from other apps on the exam server.
const Service = "cbt-backend"

// Setup initializes the global zerolog logger based on environment configuration.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for production, "pretty" for human-readable dev output
//
// Returns the configured logger instance.
func Setup(level, format string) zerolog.Logger {
	return SetupTo(os.Stdout, level, format)
}

// SetupTo is Setup writing to out. Terminal tools use it to keep logs on
// stderr.
func SetupTo(out io.Writer, level, format string) zerolog.Logger {
	writer := out
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("service", Service).
		Caller().
		Logger()
}
