package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEmitEnvelope(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	Emit("warn", "store_degraded", map[string]any{"path": "/tmp/accounts.json"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "store_degraded" {
		t.Fatalf("unexpected envelope: %v", entry)
	}
	if entry["path"] != "/tmp/accounts.json" {
		t.Fatalf("field missing: %v", entry)
	}
	if entry["ts"] == nil || entry["ts"] == "" {
		t.Fatal("missing timestamp")
	}
}

func TestLogRequestEnvelope(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogRequest(map[string]any{"method": "GET", "path": "/healthz", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "info" || entry["msg"] != "request_complete" {
		t.Fatalf("unexpected envelope: %v", entry)
	}
	if entry["method"] != "GET" || entry["status"] != float64(200) {
		t.Fatalf("fields missing: %v", entry)
	}
}
