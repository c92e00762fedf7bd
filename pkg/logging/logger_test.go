package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %q, want info", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty should default to false")
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: LevelInfo, Output: &buf})

	logger.Info().Str("queue", "orders").Msg("Requeue run finished")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not JSON: %v (%q)", err, buf.String())
	}

	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["queue"] != "orders" {
		t.Errorf("queue = %v, want orders", entry["queue"])
	}
	if entry["message"] != "Requeue run finished" {
		t.Errorf("message = %v", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected a timestamp field")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: LevelWarn, Output: &buf})

	logger.Info().Msg("filtered out")
	logger.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "filtered out") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("Warn message should pass at warn level")
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: &buf})

	logger.Info().Msg("hello")

	// Console output is not JSON
	if json.Valid(buf.Bytes()) {
		t.Errorf("Expected console output, got JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("Output missing message: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected zerolog.Level
	}{
		{"debug", LevelDebug, zerolog.DebugLevel},
		{"info", LevelInfo, zerolog.InfoLevel},
		{"warn", LevelWarn, zerolog.WarnLevel},
		{"warning alias", "warning", zerolog.WarnLevel},
		{"error", LevelError, zerolog.ErrorLevel},
		{"uppercase", "DEBUG", zerolog.DebugLevel},
		{"unknown defaults to info", "verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: LevelInfo, Output: &buf})

	logger := NewLogger("queue")
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"component":"queue"`) {
		t.Errorf("Output missing component field: %q", buf.String())
	}
}
