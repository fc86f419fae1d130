// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// Structured logger construction.

package control

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig selects level, encoding and destination of the process logger.
type LoggerConfig struct {
	Level  string    // zerolog level name, empty means info
	Format string    // "json" (default) or "console"
	Writer io.Writer // defaults to os.Stderr
}

// NewLogger builds a zerolog.Logger with timestamps. The level is applied
// through the process-wide zerolog filter so a reload can change it for
// every derived logger.
func NewLogger(cfg LoggerConfig) (zerolog.Logger, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zerolog.ParseLevel(cfg.Level); err != nil {
			return zerolog.Nop(), fmt.Errorf("%w: log level: %w", ErrInvalidConfig, err)
		}
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(w).With().Timestamp().Logger(), nil
}
