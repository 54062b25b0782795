package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  buf,
		Sync:    true,
		NoColor: true,
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
			},
		},
		{
			name: "text format",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
				Output: &bytes.Buffer{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	deviceLogger := logger.WithDevice("/dev/sdb")
	deviceLogger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "device=/dev/sdb") {
		t.Errorf("Expected device=/dev/sdb in output, got: %s", output)
	}
	if deviceLogger.Device() != "/dev/sdb" {
		t.Errorf("Device() = %q, want /dev/sdb", deviceLogger.Device())
	}

	buf.Reset()
	classLogger := deviceLogger.WithClass("random")
	classLogger.Info("class message")

	output = buf.String()
	if !strings.Contains(output, "device=/dev/sdb") {
		t.Errorf("Expected device=/dev/sdb in class logger output, got: %s", output)
	}
	if !strings.Contains(output, "class=random") {
		t.Errorf("Expected class=random in output, got: %s", output)
	}
	if classLogger.Device() != "/dev/sdb" {
		t.Errorf("class logger lost device, got %q", classLogger.Device())
	}
}

func TestLoggerWithRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	logger.WithRequest(123, "read").Debug("processing request")

	output := buf.String()
	if !strings.Contains(output, "handle=123") {
		t.Errorf("Expected handle=123 in output, got: %s", output)
	}
	if !strings.Contains(output, "op=read") {
		t.Errorf("Expected op=read in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	logger.WithError(errors.New("test error")).Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Errorf("Expected 'test error' in output, got: %s", output)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	logger.Info("fields", "depth", 64, "wait", 5*time.Millisecond, "err", errors.New("boom"), "dangling")

	output := buf.String()
	for _, want := range []string{"depth=64", "wait=5", "err=boom"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "dangling") {
		t.Errorf("Dangling key should be dropped, got: %s", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelWarn)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("shown warn")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("Expected debug/info to be filtered, got: %s", output)
	}
	if !strings.Contains(output, "shown warn") {
		t.Errorf("Expected warn message, got: %s", output)
	}
	if logger.Enabled(LevelInfo) {
		t.Error("Enabled(LevelInfo) should be false at warn level")
	}
	if !logger.Enabled(LevelError) {
		t.Error("Enabled(LevelError) should be true at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAsyncWriterClose(t *testing.T) {
	var buf bytes.Buffer
	aw := newAsyncWriter(&buf, 4)
	if _, err := aw.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("Expected flushed output, got: %q", buf.String())
	}
	if _, err := aw.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(newTestLogger(&buf, LevelDebug))
	defer SetDefault(prev)

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("Expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("Expected error message, got: %s", buf.String())
	}
}
