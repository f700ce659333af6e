// Package evtxmltest builds Windows event XML fixtures for tests.
package evtxmltest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Event describes one fixture record. Zero fields are left out of the XML.
type Event struct {
	Provider    string
	EventID     uint32
	Level       uint8
	Time        time.Time
	RecordID    uint64
	Channel     string
	Computer    string
	Data        map[string]string
	LevelName   string
	Message     string
	NoRendering bool
}

// XML renders the event as a single <Event> element.
func (e Event) XML() string {
	var b strings.Builder
	b.WriteString(`<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event"><System>`)
	if e.Provider != "" {
		fmt.Fprintf(&b, `<Provider Name="%s"/>`, e.Provider)
	}
	fmt.Fprintf(&b, `<EventID>%d</EventID><Level>%d</Level>`, e.EventID, e.Level)
	if !e.Time.IsZero() {
		fmt.Fprintf(&b, `<TimeCreated SystemTime="%s"/>`, e.Time.UTC().Format(time.RFC3339Nano))
	}
	if e.RecordID != 0 {
		fmt.Fprintf(&b, `<EventRecordID>%d</EventRecordID>`, e.RecordID)
	}
	if e.Channel != "" {
		fmt.Fprintf(&b, `<Channel>%s</Channel>`, e.Channel)
	}
	if e.Computer != "" {
		fmt.Fprintf(&b, `<Computer>%s</Computer>`, e.Computer)
	}
	b.WriteString(`</System>`)
	if len(e.Data) > 0 {
		b.WriteString(`<EventData>`)
		for k, v := range e.Data {
			fmt.Fprintf(&b, `<Data Name="%s">%s</Data>`, k, v)
		}
		b.WriteString(`</EventData>`)
	}
	if !e.NoRendering && (e.LevelName != "" || e.Message != "") {
		b.WriteString(`<RenderingInfo Culture="en-US">`)
		if e.Message != "" {
			fmt.Fprintf(&b, `<Message>%s</Message>`, e.Message)
		}
		if e.LevelName != "" {
			fmt.Fprintf(&b, `<Level>%s</Level>`, e.LevelName)
		}
		b.WriteString(`</RenderingInfo>`)
	}
	b.WriteString(`</Event>`)
	return b.String()
}

// Sequence returns n rendered events from one provider with increasing
// record ids starting at first.
func Sequence(channel string, first uint64, n int) []Event {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	events := make([]Event, n)
	for i := range events {
		id := first + uint64(i)
		events[i] = Event{
			Provider:  "Service Control Manager",
			EventID:   7036,
			Level:     4,
			Time:      base.Add(time.Duration(i) * time.Second),
			RecordID:  id,
			Channel:   channel,
			Computer:  "WS01.corp.example",
			LevelName: "Information",
			Message:   fmt.Sprintf("The service entered state %d.", id),
		}
	}
	return events
}

// Export renders events as an Event Viewer style <Events> document.
func Export(events ...Event) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n<Events>\n")
	for _, e := range events {
		b.WriteString(e.XML())
		b.WriteString("\n")
	}
	b.WriteString("</Events>\n")
	return b.String()
}

// WriteExport writes an export of events to path, creating parent directories.
func WriteExport(t testing.TB, path string, events ...Event) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(Export(events...)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
