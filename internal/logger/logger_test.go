package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/billm/imulink/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "valid json config to stdout",
			cfg:     config.LoggingConfig{Level: "INFO", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "valid text config to stderr",
			cfg:     config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "console format split output",
			cfg:     config.LoggingConfig{Level: "ERROR", Format: "console", Output: "split"},
			wantErr: false,
		},
		{
			name:    "unknown log level falls back to info",
			cfg:     config.LoggingConfig{Level: "chatty", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "invalid log format",
			cfg:     config.LoggingConfig{Level: "info", Format: "invalid", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "empty output defaults to split",
			cfg:     config.LoggingConfig{Level: "info", Format: "text", Output: ""},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger without error")
			}
		})
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}
	if logger.GetLevel() != LevelInfo {
		t.Errorf("NewDefault() level = %v, want %v", logger.GetLevel(), LevelInfo)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  Level
		known bool
	}{
		{"NONE", LevelNone, true},
		{"none", LevelNone, true},
		{"ERROR", LevelError, true},
		{"Error", LevelError, true},
		{"INFO", LevelInfo, true},
		{"debug", LevelDebug, true},
		{"warning", LevelWarn, true},
		{"", LevelInfo, false},
		{"TRACE", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, known := ParseLevel(tt.level)
			if got != tt.want || known != tt.known {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.level, got, known, tt.want, tt.known)
			}
		})
	}
}

func TestSplitOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "INFO", Format: "text", Output: "split"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Info("sample received", "seq", 1)
	logger.Debug("hidden")
	logger.Error("send failed", "err", errors.New("broken pipe"))

	if !strings.Contains(stdout.String(), "sample received") {
		t.Errorf("stdout = %q, want info record", stdout.String())
	}
	if strings.Contains(stdout.String(), "send failed") {
		t.Errorf("stdout = %q, error record must not go to stdout", stdout.String())
	}
	if strings.Contains(stdout.String(), "hidden") {
		t.Errorf("stdout = %q, debug record must be filtered at INFO", stdout.String())
	}
	if !strings.Contains(stderr.String(), "send failed") || !strings.Contains(stderr.String(), "broken pipe") {
		t.Errorf("stderr = %q, want error record", stderr.String())
	}
	if strings.Contains(stderr.String(), "sample received") {
		t.Errorf("stderr = %q, info record must not go to stderr", stderr.String())
	}
}

func TestLevelNoneDiscardsEverything(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "NONE", Format: "text", Output: "split"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Info("info")
	logger.Error("error")

	if stdout.Len() != 0 || stderr.Len() != 0 {
		t.Errorf("expected no output at NONE, got stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
	if logger.Enabled(LevelError) {
		t.Error("Enabled(LevelError) = true at NONE")
	}
}

func TestLevelErrorSuppressesInfo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "ERROR", Format: "json", Output: "split"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Info("info")
	logger.Error("error")

	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &entry); err != nil {
		t.Fatalf("stderr is not a JSON record: %v", err)
	}
	if entry["msg"] != "error" {
		t.Errorf("msg = %v, want error", entry["msg"])
	}
}

func TestConsoleFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "INFO", Format: "console", Output: "stdout"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.With("component", "consumer").WithGroup("sample").Info("received", "seq", 7)

	out := stdout.String()
	for _, want := range []string{"received", "component=consumer", "sample.seq=7"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output %q missing %q", out, want)
		}
	}
}

func TestSetLevelPropagates(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root, err := newLogger(config.LoggingConfig{Level: "ERROR", Format: "text", Output: "split"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	child := root.With("component", "watchdog")

	child.Info("before")
	root.SetLevel(LevelInfo)
	child.Info("after")

	if strings.Contains(stdout.String(), "before") {
		t.Error("record logged before SetLevel should have been filtered")
	}
	if !strings.Contains(stdout.String(), "after") {
		t.Error("derived logger did not pick up the new level")
	}
	if child.GetLevel() != LevelInfo {
		t.Errorf("GetLevel() = %v, want %v", child.GetLevel(), LevelInfo)
	}
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "imulink.log")

	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("test message", "key", "value")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("Log entry is not valid JSON: %v", err)
	}
	if msg, ok := entry["msg"].(string); !ok || msg != "test message" {
		t.Errorf("Log message = %v, want 'test message'", entry["msg"])
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Error("dropped")
	if l.Enabled(LevelError) {
		t.Error("NewNop() logger should not be enabled for any level")
	}
	if l.GetLevel().String() != "NONE" {
		t.Errorf("GetLevel() = %v, want NONE", l.GetLevel())
	}
}

func TestLoggersAreIndependent(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.SetLevel(LevelDebug)

	if !a.Enabled(LevelDebug) {
		t.Error("SetLevel() did not enable DEBUG on the logger it was called on")
	}
	if b.Enabled(LevelError) {
		t.Error("SetLevel() on one logger changed another logger")
	}
}
