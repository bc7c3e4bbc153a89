package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerWritesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("dispatch", &buf).With("run_id", "abc")

	logger.Info("file processed", "path", "/tmp/a.pdf", "pages", 3, "err", errors.New("none"), "dangling")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}

	want := map[string]interface{}{
		"component": "dispatch",
		"run_id":    "abc",
		"path":      "/tmp/a.pdf",
		"pages":     float64(3),
		"err":       "none",
		"message":   "file processed",
		"level":     "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["dangling"]; ok {
		t.Errorf("odd trailing key should be dropped")
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "chatty"
	if err := Setup(cfg); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
