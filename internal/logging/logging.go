// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/storefront-admin/backend/internal/config"
)

// Init installs the default logger described by cfg, writing to stdout.
func Init(cfg config.AdvancedConfig) {
	slog.SetDefault(New(os.Stdout, cfg))
	slog.With("component", "logger").Debug("logger initialized",
		"level", cfg.LogLevel,
		"json_format", cfg.JSONLogs,
	)
}

// New builds a logger writing to w.
func New(w io.Writer, cfg config.AdvancedConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if cfg.JSONLogs {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
