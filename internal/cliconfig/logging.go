package cliconfig

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/syncq/pkg/log"
)

// NewLogger builds the CLI logger. With LogFile set, JSON lines go to a
// rotating file; otherwise human-readable output goes to stderr. The
// returned closer releases the file and is never nil.
func NewLogger(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		l, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return zerolog.Nop(), io.NopCloser(nil), err
		}
		level = l
	}

	if cfg.LogFile == "" {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(out).Level(level).With().Timestamp().Logger(), io.NopCloser(nil), nil
	}

	w := log.NewRotatingFile(log.RotationConfig{Path: cfg.LogFile, Compress: true})
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), w, nil
}
