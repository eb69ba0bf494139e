package services

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlogLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
		json  bool
	}{
		{"debug level text", "debug", false},
		{"info level text", "info", false},
		{"default level text", "unknown", false},
		{"debug level json", "debug", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewSlogLogger(tt.level, tt.json)
			require.NotNil(t, logger)
			assert.NotNil(t, logger.logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestSlogLoggerTo_Filters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerTo(&buf, "warn", false)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
}

func TestSlogLogger_WithJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerTo(&buf, "info", true).With("component", "bridge")

	logger.Info("Signal emitted")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "bridge", rec["component"])
}

func TestNopLogger(t *testing.T) {
	logger := &NopLogger{}

	logger.Debug("debug message", "key", "value")
	logger.Error("error message", "key", "value")

	assert.Same(t, logger, logger.With("key", "value"))

	var _ ports.Logger = logger
}
