package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")

	cfg := FromEnv()
	if cfg.Level != LevelDebug {
		t.Errorf("Expected level debug from environment, got %s", cfg.Level)
	}
	if !cfg.Pretty {
		t.Error("Expected pretty output from environment")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_PRETTY", "")

	cfg := FromEnv()
	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected pretty to stay false without LOG_PRETTY")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		level   LogLevel
		testMsg string
	}{
		{name: "info_level", level: LevelInfo, testMsg: "serving request"},
		{name: "debug_level", level: LevelDebug, testMsg: "cache lookup"},
		{name: "warn_level", level: LevelWarn, testMsg: "conversion failed"},
		{name: "error_level", level: LevelError, testMsg: "upstream unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			switch tt.level {
			case LevelDebug:
				logger.Debug().Msg(tt.testMsg)
			case LevelInfo:
				logger.Info().Msg(tt.testMsg)
			case LevelWarn:
				logger.Warn().Msg(tt.testMsg)
			case LevelError:
				logger.Error().Msg(tt.testMsg)
			}

			output := buf.String()
			if !strings.Contains(output, tt.testMsg) {
				t.Errorf("Expected output to contain %q, got %q", tt.testMsg, output)
			}
			if !strings.Contains(output, `"service":"mediaproxy"`) {
				t.Errorf("Expected service field on every line, got %q", output)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("proxy")
	logger.Info().Msg("request served")

	output := buf.String()
	if !strings.Contains(output, "proxy") {
		t.Errorf("Expected output to contain component name, got %q", output)
	}
	if !strings.Contains(output, "request served") {
		t.Errorf("Expected output to contain message, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("cache")

	// Below the configured level, must not appear.
	logger.Debug().Msg("lookup detail")
	logger.Info().Msg("entry inserted")

	// At or above the configured level.
	logger.Warn().Msg("insert dropped")
	logger.Error().Msg("upstream failed")

	output := buf.String()

	if strings.Contains(output, "lookup detail") {
		t.Error("Debug message should be filtered out at Warn level")
	}
	if strings.Contains(output, "entry inserted") {
		t.Error("Info message should be filtered out at Warn level")
	}
	if !strings.Contains(output, "insert dropped") {
		t.Error("Warn message should be included at Warn level")
	}
	if !strings.Contains(output, "upstream failed") {
		t.Error("Error message should be included at Warn level")
	}
}
