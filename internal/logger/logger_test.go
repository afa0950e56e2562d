package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, test := range tests {
		if got := parseLevel(test.input); got != test.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", test.input, got, test.expected)
		}
	}
}

func TestComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(Options{Level: "info", Out: &buf}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer Setup(Options{})

	log := New("locator")
	log.Info().Msg("scan pass 1/3")
	log.Debug().Msg("hidden at info level")

	output := buf.String()
	if !strings.Contains(output, "[locator] scan pass 1/3") {
		t.Errorf("Expected component prefix in output, got %q", output)
	}
	if strings.Contains(output, "hidden at info level") {
		t.Error("Debug message should be filtered at info level")
	}
}

func TestDebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(Options{Level: "error", Debug: true, Out: &buf}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer Setup(Options{})

	New("x").Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("Debug mode should enable debug output")
	}
}

func TestFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	if err := Setup(Options{File: path, Out: &buf}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	New("monitor").Info().Str("url", "https://shop.example").Msg("navigated")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	defer Setup(Options{})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file, got %v", err)
	}
	if !strings.Contains(string(data), `"component":"monitor"`) {
		t.Errorf("Expected JSON line with component, got %q", string(data))
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info().Msg("discarded")
	if l.With("session", "abc") == nil {
		t.Fatal("With returned nil")
	}
}
