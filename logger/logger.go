package logger

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level slog.Level
	JSON  bool
}

// Init installs the process-wide slog logger.
func Init(config *Config) {
	opts := &slog.HandlerOptions{Level: config.Level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if config.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func MapLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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

// Fatal logs at error level and exits.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
