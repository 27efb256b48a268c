package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogOptions{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() unexpected error: %v", err)
	}

	logger.With("run_id", "r1").Info("✓ found", "title", "Big ideas", "count", 3)
	logger.Debug("hidden")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message logged at info level")
	}
	for _, want := range []string{"INFO", "✓ found", "run_id=r1", `title="Big ideas"`, "count=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colour codes written to a non-terminal writer")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogOptions{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("stage finished", "stage", "transcript", "out", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "stage finished" || entry["stage"] != "transcript" || entry["level"] != "DEBUG" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLoggerUnknownFormat(t *testing.T) {
	if _, err := NewLogger(LogOptions{Format: "xml"}); err == nil {
		t.Error("NewLogger() expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConsoleHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(LogOptions{Writer: &buf})

	logger.WithGroup("smtp").Info("sending", "host", "smtp.gmail.com", slog.Group("auth", "user", "me"))

	out := buf.String()
	for _, want := range []string{"smtp.host=smtp.gmail.com", "smtp.auth.user=me"} {
		if !strings.Contains(out, want) {
			t.Errorf("grouped output missing %q: %q", want, out)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    slog.Value
		want string
	}{
		{slog.StringValue("plain"), "plain"},
		{slog.StringValue(""), `""`},
		{slog.StringValue("a=b"), `"a=b"`},
		{slog.IntValue(42), "42"},
		{slog.BoolValue(true), "true"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.v); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
