// Package logger holds the process-wide zerolog logger. Log output
// goes to stderr so stdout stays free for command output and replay
// results.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(io.Discard)

// Init configures the global logger. An unknown level falls back to
// info. When file is non-empty, logs are mirrored there as JSON lines.
func Init(level, file string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}}

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	log = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return nil
}

// InitQuiet discards all log output. Used by commands whose stdout is
// machine-consumed.
func InitQuiet() {
	log = zerolog.New(io.Discard)
}

// Logger returns the configured logger for components that attach
// their own context fields.
func Logger() zerolog.Logger { return log }

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }
