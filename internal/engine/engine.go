package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/crimson-sun/evtship/internal/engine/severity"
	"github.com/crimson-sun/evtship/internal/model"
)

// Option configures an Engine.
type Option func(*Engine)

// WithAllowUnrendered makes records without a formatted description produce
// a message synthesized from provider, event id and event data instead of
// failing with model.ErrUnformattableRecord.
func WithAllowUnrendered(allow bool) Option {
	return func(e *Engine) { e.allowUnrendered = allow }
}

// Engine translates native records into canonical events. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	allowUnrendered bool
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process converts one native record from src into exactly one canonical
// event. Per-record failures wrap model.ErrUnmappedSeverity or
// model.ErrUnformattableRecord; callers skip the record and carry on.
func (e *Engine) Process(rec model.NativeRecord, src model.LogSource) (model.CanonicalEvent, error) {
	level, err := severity.Normalize(rec)
	if err != nil {
		return model.CanonicalEvent{}, fmt.Errorf("record %d from %s: %w", rec.RecordID, src.Name, err)
	}

	msg, err := rec.FormatDescription()
	if err != nil {
		if !e.allowUnrendered {
			return model.CanonicalEvent{}, fmt.Errorf("record %d from %s: %w: %v",
				rec.RecordID, src.Name, model.ErrUnformattableRecord, err)
		}
		msg = synthesize(rec)
	}

	ts := model.UnknownTimestamp
	if rec.HasTimeCreated() {
		ts = rec.TimeCreated
	}

	return model.CanonicalEvent{
		Timestamp:       ts,
		Level:           level,
		MessageTemplate: msg,
		Properties:      properties(rec, src),
	}, nil
}

// properties builds the property map. Native values that are unavailable
// are left out rather than filled with placeholders.
func properties(rec model.NativeRecord, src model.LogSource) map[string]any {
	props := map[string]any{
		model.PropEventLogName: src.Name,
	}
	if rec.HasEventID {
		props[model.PropEventID] = rec.EventID
	}
	if rec.Computer != "" {
		props[model.PropMachineName] = rec.Computer
	}
	if rec.Provider != "" {
		props[model.PropSource] = rec.Provider
	}
	if rec.RecordID != 0 {
		props[model.PropRecordID] = rec.RecordID
	}
	if rec.Channel != "" {
		props[model.PropChannel] = rec.Channel
	}
	if len(rec.EventData) > 0 {
		props[model.PropEventData] = maps.Clone(rec.EventData)
	}
	return props
}

func synthesize(rec model.NativeRecord) string {
	var b strings.Builder
	b.WriteString(rec.Provider)
	if rec.HasEventID {
		fmt.Fprintf(&b, " event %d", rec.EventID)
	}
	for _, k := range slices.Sorted(maps.Keys(rec.EventData)) {
		fmt.Fprintf(&b, " %s=%q", k, rec.EventData[k])
	}
	return b.String()
}
