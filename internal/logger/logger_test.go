package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"", INFO},
		{"warning", WARN},
		{"Warn", WARN},
		{"error", ERROR},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "warn", Component: "monitor"})
	l.SetOutput(buf)

	l.Debug("polling")
	l.Info("batch of %d mentions", 3)
	l.Warn("poll failed")
	l.Error("auth rejected")

	out := buf.String()
	if strings.Contains(out, "polling") || strings.Contains(out, "batch of") {
		t.Errorf("Expected debug/info lines filtered, got: %s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "ERROR") {
		t.Errorf("Expected warn and error lines, got: %s", out)
	}
}

func TestLineFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Component: "bluesky"})
	l.SetOutput(buf)

	l.Info("posted reply to %s", "at://did:plc:abc/app.bsky.feed.post/1")

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Error("Expected level in output")
	}
	if !strings.Contains(out, "[bluesky]") {
		t.Errorf("Expected component in output, got: %s", out)
	}
	if !strings.Contains(out, "posted reply to at://did:plc:abc/app.bsky.feed.post/1") {
		t.Errorf("Expected formatted message, got: %s", out)
	}
}

func TestWithComponentSharesLevelAndOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "error", Component: "main"})
	l.SetOutput(buf)

	child := l.WithComponent("agent")
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected child to inherit level, got: %s", buf.String())
	}

	l.SetLevel(INFO)
	child.Info("visible")
	if !strings.Contains(buf.String(), "[agent]") {
		t.Errorf("Expected child component, got: %s", buf.String())
	}
	if child.GetLevel() != INFO {
		t.Errorf("Expected INFO, got %v", child.GetLevel())
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "debug", Component: "monitor"})
	l.SetOutput(buf)

	l.With("mention", "at://x/1", "stage", "fetch_thread").Warn("stage failed")

	out := buf.String()
	if !strings.Contains(out, `"mention": "at://x/1"`) {
		t.Errorf("Expected mention field, got: %s", out)
	}
	if !strings.Contains(out, `"stage": "fetch_thread"`) {
		t.Errorf("Expected stage field, got: %s", out)
	}
}

func TestPackageLevelFunctions(t *testing.T) {
	prev := GetDefaultLogger()
	defer SetDefaultLogger(prev)

	buf := &bytes.Buffer{}
	l := New(&Config{Level: "debug", Component: "pkg"})
	l.SetOutput(buf)
	SetDefaultLogger(l)

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	out := buf.String()
	for _, lvl := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if !strings.Contains(out, lvl) {
			t.Errorf("Expected %s line, got: %s", lvl, out)
		}
	}
}
