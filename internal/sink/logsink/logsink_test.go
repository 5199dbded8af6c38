package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/sms"
)

func TestHandleLogsFields(t *testing.T) {
	var buf bytes.Buffer
	s := Sink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	env := bus.NewEnvelope(bus.SourceSMSWebhook, sms.FromValues(map[string]string{
		"msisdn":            "447700900000",
		"messageId":         "abc123",
		"text":              strings.Repeat("é", 60),
		"type":              "unicode",
		"concat":            "true",
		"concat-ref":        "7",
		"concat-total":      "2",
		"concat-part":       "1",
		"message-timestamp": "2020-01-01 12:00:00",
	}))
	if err := s.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "inbound sms" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["id"] != env.ID || rec["message_id"] != "abc123" {
		t.Errorf("ids = %v %v", rec["id"], rec["message_id"])
	}
	if rec["concat_part"] != float64(1) || rec["concat_total"] != float64(2) {
		t.Errorf("concat = %v/%v", rec["concat_part"], rec["concat_total"])
	}
	if _, ok := rec["message_timestamp"]; !ok {
		t.Error("expected message_timestamp")
	}
	if text, _ := rec["text"].(string); text != strings.Repeat("é", 50)+"..." {
		t.Errorf("text = %q", text)
	}
}

func TestHandleSkipsBinaryText(t *testing.T) {
	var buf bytes.Buffer
	s := Sink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	env := bus.NewEnvelope(bus.SourceSMSWebhook, sms.FromValues(map[string]string{"type": "binary", "data": "00ff"}))
	if err := s.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if strings.Contains(buf.String(), `"text"`) {
		t.Fatalf("binary message logged text: %s", buf.String())
	}
}
