package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestJSONAdapter_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONAdapter(&buf)

	logger.Warn("replay failed",
		String("id", "abc"),
		Int("retry_count", 2),
		Bool("online", true),
		Duration("took", 1500*time.Millisecond),
		Err(errors.New("boom")),
	)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}

	if got["level"] != "warn" {
		t.Errorf("level = %v, want warn", got["level"])
	}
	if got["message"] != "replay failed" {
		t.Errorf("message = %v, want replay failed", got["message"])
	}
	if got["id"] != "abc" {
		t.Errorf("id = %v, want abc", got["id"])
	}
	if got["retry_count"] != float64(2) {
		t.Errorf("retry_count = %v, want 2", got["retry_count"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
}

func TestWith_PrependsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := With(NewJSONAdapter(&buf), String("component", "coordinator"))

	logger.Info("drain finished", Int("synced", 3))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if got["component"] != "coordinator" {
		t.Errorf("component = %v, want coordinator", got["component"])
	}
	if got["synced"] != float64(3) {
		t.Errorf("synced = %v, want 3", got["synced"])
	}
}

func TestWith_NoFieldsReturnsSameLogger(t *testing.T) {
	base := NewNoopLogger()
	if got := With(base); got != Logger(base) {
		t.Errorf("With() without fields should return the input logger")
	}
}
