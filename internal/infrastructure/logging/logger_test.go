package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

func TestNew_JSONFormat(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	logger := New(cfg, "1.0.0")

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNew_TextFormat(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "debug",
		Format: "text",
		Output: "stderr",
	}

	logger := New(cfg, "1.0.0")

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug level", input: "debug", expected: slog.LevelDebug},
		{name: "info level", input: "info", expected: slog.LevelInfo},
		{name: "warn level", input: "warn", expected: slog.LevelWarn},
		{name: "warning level", input: "warning", expected: slog.LevelWarn},
		{name: "error level", input: "error", expected: slog.LevelError},
		{name: "unknown defaults to info", input: "unknown", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "case insensitive", input: "DEBUG", expected: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger := Default()
	childLogger := logger.With("component", "mqtt")

	if childLogger == nil {
		t.Fatal("expected non-nil child logger")
	}

	if childLogger == logger {
		t.Error("expected child logger to be different from parent")
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")
	logger.Component("wake").Info("test message", "key", "value")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	checks := map[string]string{
		"msg":       "test message",
		"key":       "value",
		"service":   "inkframe",
		"version":   "test",
		"component": "wake",
	}
	for field, want := range checks {
		if logEntry[field] != want {
			t.Errorf("%s = %v, want %q", field, logEntry[field], want)
		}
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "test")
	logger.Info("dropped")
	logger.Debug("dropped")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("expected warn output")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("goes nowhere")
}
