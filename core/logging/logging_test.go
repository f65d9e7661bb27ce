package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevelAndFormat(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warn":    LevelWarn,
		"error":   LevelError,
		"":        LevelWarn,
		"verbose": LevelWarn,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q): got %d want %d", input, got, want)
		}
	}
	if ParseFormat("JSON") != FormatJSON || ParseFormat("text") != FormatText || ParseFormat("") != FormatText {
		t.Fatal("unexpected format parsing")
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(&buffer, LevelInfo, FormatJSON)
	logger.Debug("hidden")
	logger.Info("session classified", "classification", "same_session")

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %q", len(lines), buffer.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if entry["msg"] != "session classified" || entry["classification"] != "same_session" {
		t.Fatalf("unexpected log entry: %#v", entry)
	}
	if timestamp, _ := entry["time"].(string); !strings.HasSuffix(timestamp, "Z") {
		t.Fatalf("expected UTC RFC3339 time, got %q", timestamp)
	}
}

func TestNewTextLoggerRespectsLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(&buffer, LevelWarn, FormatText)
	logger.Info("skipped")
	logger.Warn("untrusted archive host", "host", "mirror.example.com")
	output := buffer.String()
	if strings.Contains(output, "skipped") {
		t.Fatalf("info line should be filtered: %q", output)
	}
	if !strings.Contains(output, "host=mirror.example.com") {
		t.Fatalf("expected text attributes, got %q", output)
	}
}

func TestDiscardAndNilWriter(t *testing.T) {
	if New(nil, LevelDebug, FormatJSON) == nil {
		t.Fatal("expected non-nil logger for nil writer")
	}
	if OrDiscard(nil) == nil {
		t.Fatal("expected discard logger")
	}
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("discard logger must not be enabled")
	}
	logger := FromEnv(func(key string) (string, bool) {
		if key == EnvLevel {
			return "debug", true
		}
		return "", false
	})
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level from environment")
	}
}
