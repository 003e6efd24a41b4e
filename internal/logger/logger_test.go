package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimatrack/estimatrack/internal/config"
)

func testAppConfig(level, format string) *config.AppConfig {
	return &config.AppConfig{
		Name:        "estimatrack-test",
		Version:     "0.0.0",
		Environment: config.EnvironmentDevelopment,
		LogLevel:    level,
		LogFormat:   format,
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("Should emit JSON with the identity attributes attached", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(testAppConfig("info", "json"), &buf)

		log.Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "estimatrack-test", entry["service"])
		assert.Equal(t, "0.0.0", entry["version"])
		assert.Equal(t, config.EnvironmentDevelopment, entry["env"])
	})

	t.Run("Should emit key=value pairs in text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(testAppConfig("info", "text"), &buf)

		log.Info("hello")

		out := buf.String()
		assert.Contains(t, out, "msg=hello")
		assert.Contains(t, out, "service=estimatrack-test")
	})

	t.Run("Should suppress records below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(testAppConfig("warn", "json"), &buf)

		log.Info("quiet")
		assert.Empty(t, buf.String())

		log.Warn("loud")
		assert.Contains(t, buf.String(), "loud")
	})

	t.Run("Should fall back to JSON when the format is unknown", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(testAppConfig("info", "yaml"), &buf)

		log.Info("hello")

		var entry map[string]any
		assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	})

	t.Run("Should omit source locations in production", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := testAppConfig("info", "json")
		cfg.Environment = config.EnvironmentProduction

		NewWithWriter(cfg, &buf).Info("hello")

		assert.False(t, strings.Contains(buf.String(), `"source"`))
	})

	t.Run("Should panic on nil config", func(t *testing.T) {
		assert.Panics(t, func() {
			NewWithWriter(nil, &bytes.Buffer{})
		})
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "Should parse lowercase debug", input: "debug", want: slog.LevelDebug},
		{name: "Should parse uppercase WARN", input: "WARN", want: slog.LevelWarn},
		{name: "Should parse error", input: "error", want: slog.LevelError},
		{name: "Should default to info for unknown levels", input: "super-critical", want: slog.LevelInfo},
		{name: "Should default to info when empty", input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}
