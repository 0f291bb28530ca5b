package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger from api.log_level and api.log_format ("json" or "text").
func (a APIConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(a.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(strings.TrimSpace(a.LogFormat), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
