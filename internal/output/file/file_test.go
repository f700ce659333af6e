package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crimson-sun/evtship/internal/model"
)

func testBatch(n int) model.EventBatch {
	events := make([]model.CanonicalEvent, n)
	for i := range events {
		events[i] = model.CanonicalEvent{
			Timestamp:       time.Date(2024, 3, 1, 8, 0, i, 0, time.UTC),
			Level:           "Information",
			MessageTemplate: fmt.Sprintf("event %d", i),
			Properties:      map[string]any{"EventId": 7036, "RecordId": i + 1},
		}
	}
	return model.EventBatch{ID: "b", Events: events}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestSendProducesValidNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer s.Close()

	if err := s.Send(context.Background(), testBatch(5)); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	// Send flushes, so the lines are visible before Close.
	lines := readLines(t, path)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var ev model.CanonicalEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
		}
		if want := fmt.Sprintf("event %d", i); ev.MessageTemplate != want {
			t.Errorf("line %d: message = %q, want %q", i, ev.MessageTemplate, want)
		}
	}
}

func TestAppendArbitraryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dl.jsonl")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := s.Append(map[string]string{"batch_id": "x"}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	s.Close()

	lines := readLines(t, path)
	if len(lines) != 1 || lines[0] != `{"batch_id":"x"}` {
		t.Errorf("lines = %q", lines)
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	// Each line is well over 100 bytes, so every line after the first rotates.
	s, err := New(path, WithMaxSize(150))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Send(context.Background(), testBatch(1)); err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	s.Close()

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if got := readLines(t, p); len(got) != 1 {
			t.Errorf("%s: got %d lines, want 1", p, len(got))
		}
	}
}

func TestReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := 0; i < 2; i++ {
		s, err := New(path)
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		s.Send(context.Background(), testBatch(2))
		s.Close()
	}
	if got := readLines(t, path); len(got) != 4 {
		t.Errorf("got %d lines, want 4", len(got))
	}
}

func TestConcurrentSendsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Send(context.Background(), testBatch(1))
		}()
	}
	wg.Wait()
	s.Close()

	if got := readLines(t, path); len(got) != 50 {
		t.Errorf("got %d lines, want 50", len(got))
	}
}
