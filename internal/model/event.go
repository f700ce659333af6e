package model

import "time"

// UnknownTimestamp marks an event whose native record carried no creation
// time. It is the zero time.Time (0001-01-01T00:00:00Z), which can never
// collide with a real event-log timestamp or with the Unix epoch.
var UnknownTimestamp = time.Time{}

// Property names always populated on a CanonicalEvent when the native value exists.
const (
	PropMachineName  = "MachineName"
	PropEventID      = "EventId"
	PropSource       = "Source"
	PropEventLogName = "EventLogName"
	PropRecordID     = "RecordId"
	PropChannel      = "Channel"
	PropEventData    = "EventData"
)

// CanonicalEvent is the normalized, sink-ready representation of one record.
// The JSON field names are the sink's raw event format.
type CanonicalEvent struct {
	Timestamp       time.Time      `json:"Timestamp"`
	Level           string         `json:"Level"`
	MessageTemplate string         `json:"MessageTemplate"`
	Properties      map[string]any `json:"Properties"`
}

// HasTimestamp reports whether the event carries a real creation time.
func (e CanonicalEvent) HasTimestamp() bool {
	return !e.Timestamp.Equal(UnknownTimestamp)
}

// EventBatch is a bounded group of events from a single source sent in one
// delivery attempt (plus retries). Batches are transient.
type EventBatch struct {
	ID           string
	Source       LogSource
	Events       []CanonicalEvent
	LastRecordID uint64 // highest native record id in the batch, 0 if unknown
}

// Len returns the number of events in the batch.
func (b EventBatch) Len() int { return len(b.Events) }

// Payload is the request body accepted by the sink.
type Payload struct {
	Events []CanonicalEvent `json:"Events"`
}

// Payload wraps the batch events in the sink's request envelope.
func (b EventBatch) Payload() Payload {
	return Payload{Events: b.Events}
}
