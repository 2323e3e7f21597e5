package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger builds the process logger. level stays adjustable after construction.
func NewLogger(w io.Writer, cfg LogConfig, level *slog.LevelVar) *slog.Logger {
	if l, err := ParseLevel(cfg.Level); err == nil {
		level.Set(l)
	}

	if cfg.Format == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
