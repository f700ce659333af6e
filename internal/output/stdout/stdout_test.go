package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/evtship/internal/model"
)

func testBatch() model.EventBatch {
	ev := model.CanonicalEvent{
		Timestamp:       time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		Level:           "Error",
		MessageTemplate: "The Spooler service terminated unexpectedly.",
		Properties:      map[string]any{"EventId": 7034, "Source": "Service Control Manager"},
	}
	return model.EventBatch{ID: "b", Events: []model.CanonicalEvent{ev, ev}}
}

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestSendCompactJSON(t *testing.T) {
	result := captureStdout(func() {
		s := New(false)
		s.Send(context.Background(), testBatch())
	})

	// One line per event (NDJSON).
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"Timestamp", "Level", "MessageTemplate", "Properties"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestSendPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf, true)
	if err := s.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"Level\": \"Error\"") {
		t.Errorf("expected indented output, got:\n%s", buf.String())
	}
}

func TestCloseIsNoop(t *testing.T) {
	if err := New(false).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
