package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestMapLogLevel(t *testing.T) {
	type args struct {
		levelStr string
	}
	tests := []struct {
		name string
		args args
		want slog.Level
	}{
		{
			name: "maps debug to LevelDebug",
			args: args{levelStr: "debug"},
			want: slog.LevelDebug,
		},
		{
			name: "maps info to LevelInfo",
			args: args{levelStr: "info"},
			want: slog.LevelInfo,
		},
		{
			name: "maps warn to LevelWarn",
			args: args{levelStr: "warn"},
			want: slog.LevelWarn,
		},
		{
			name: "maps error to LevelError",
			args: args{levelStr: "error"},
			want: slog.LevelError,
		},
		{
			name: "level is case insensitive",
			args: args{levelStr: "DEBUG"},
			want: slog.LevelDebug,
		},
		{
			name: "maps warning to LevelWarn",
			args: args{levelStr: "warning"},
			want: slog.LevelWarn,
		},
		{
			name: "unknown level defaults to LevelInfo",
			args: args{levelStr: "unknown"},
			want: slog.LevelInfo,
		},
		{
			name: "empty string defaults to LevelInfo",
			args: args{levelStr: ""},
			want: slog.LevelInfo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapLogLevel(tt.args.levelStr); got != tt.want {
				t.Errorf("MapLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name: "initializes with JSON format",
			config: &Config{
				Level: slog.LevelInfo,
				JSON:  true,
			},
		},
		{
			name: "initializes with text format",
			config: &Config{
				Level: slog.LevelInfo,
				JSON:  false,
			},
		},
		{
			name: "initializes with debug level",
			config: &Config{
				Level: slog.LevelDebug,
				JSON:  false,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.config)
			if !slog.Default().Enabled(context.Background(), tt.config.Level) {
				t.Errorf("Init() logger does not log at %v", tt.config.Level)
			}
			if tt.config.Level > slog.LevelDebug && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
				t.Error("Init() logger logs below its configured level")
			}
		})
	}
}

// Fatal is not tested: it exits the process.
