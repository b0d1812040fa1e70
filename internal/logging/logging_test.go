package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("pass finished", "emitted", 2)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["msg"] != "pass finished" || line["service"] != "lifesignal" || line["emitted"] != float64(2) {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestNewTextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "text", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	if _, err := New("loud", "text", nil); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Fatalf("expected format error")
	}
}
