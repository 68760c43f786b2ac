package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/config"
)

type Logger = zerolog.Logger

// New builds the process logger. Logs go to stderr unless a file is
// configured, so they never interleave with the terminal view on stdout.
// The returned closer releases the log file, if any.
func New(cfg config.LogConfig) (Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("logging: open %s: %w", cfg.File, err)
		}
		out, closer = f, f
	}

	return newLogger(out, cfg), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newLogger(out io.Writer, cfg config.LogConfig) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stderr}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("session", uuid.NewString()).
		Logger()
}
