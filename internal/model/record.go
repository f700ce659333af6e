package model

import "time"

// Rendering holds the provider-rendered strings for a record. It is only
// present when the provider's metadata was available at read time.
type Rendering struct {
	Level   string
	Message string
}

// NativeRecord is one entry as produced by the event-log subsystem, before
// normalization.
type NativeRecord struct {
	TimeCreated time.Time // zero when the record carried no creation time
	Level       uint8
	EventID     uint32
	HasEventID  bool   // false when the record carried no parseable event id
	RecordID    uint64 // zero when absent
	Provider    string
	Computer    string
	Channel     string
	EventData   map[string]string
	Rendering   *Rendering
}

// HasTimeCreated reports whether the record carried a creation time.
func (r NativeRecord) HasTimeCreated() bool {
	return !r.TimeCreated.IsZero()
}

// LevelDisplayName returns the provider's display name for the record's
// level. It fails with ErrMetadataUnavailable when no rendering exists.
func (r NativeRecord) LevelDisplayName() (string, error) {
	if r.Rendering == nil || r.Rendering.Level == "" {
		return "", ErrMetadataUnavailable
	}
	return r.Rendering.Level, nil
}

// FormatDescription returns the provider-formatted message. It fails with
// ErrMetadataUnavailable when the record was read without provider metadata.
func (r NativeRecord) FormatDescription() (string, error) {
	if r.Rendering == nil || r.Rendering.Message == "" {
		return "", ErrMetadataUnavailable
	}
	return r.Rendering.Message, nil
}
