package engine

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/evtship/internal/model"
)

var testSource = model.LogSource{Name: "System.xml", Handle: "/archive/System.xml", Kind: model.Archive}

func renderedRecord() model.NativeRecord {
	return model.NativeRecord{
		TimeCreated: time.Date(2024, 3, 1, 8, 15, 30, 0, time.UTC),
		Level:       2,
		EventID:     7000,
		HasEventID:  true,
		RecordID:    4211,
		Provider:    "Service Control Manager",
		Computer:    "WS01.corp.example",
		Channel:     "System",
		EventData:   map[string]string{"param1": "Spooler", "param2": "%%1053"},
		Rendering:   &model.Rendering{Level: "Error", Message: "The Spooler service failed to start."},
	}
}

func TestProcess_RenderedRecord(t *testing.T) {
	ev, err := New().Process(renderedRecord(), testSource)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 1, 8, 15, 30, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, "Error", ev.Level)
	assert.Equal(t, "The Spooler service failed to start.", ev.MessageTemplate)
	assert.Equal(t, map[string]any{
		"MachineName":  "WS01.corp.example",
		"EventId":      uint32(7000),
		"Source":       "Service Control Manager",
		"EventLogName": "System.xml",
		"RecordId":     uint64(4211),
		"Channel":      "System",
		"EventData":    map[string]string{"param1": "Spooler", "param2": "%%1053"},
	}, ev.Properties)
}

func TestProcess_MessageIsNotReparsed(t *testing.T) {
	rec := renderedRecord()
	rec.Rendering.Message = "Value {0} for {Name} stays {{verbatim}}"

	ev, err := New().Process(rec, testSource)
	require.NoError(t, err)
	assert.Equal(t, "Value {0} for {Name} stays {{verbatim}}", ev.MessageTemplate)
}

func TestProcess_MissingTimestampUsesSentinel(t *testing.T) {
	rec := renderedRecord()
	rec.TimeCreated = time.Time{}

	before := time.Now()
	ev, err := New().Process(rec, testSource)
	require.NoError(t, err)

	assert.True(t, ev.Timestamp.Equal(model.UnknownTimestamp))
	assert.False(t, ev.HasTimestamp())
	assert.True(t, ev.Timestamp.Before(before.Add(-24*time.Hour)), "timestamp must not be wall-clock time")
	assert.False(t, ev.Timestamp.Equal(time.Unix(0, 0)))
}

func TestProcess_OmitsUnavailableProperties(t *testing.T) {
	rec := model.NativeRecord{
		Level:      4,
		EventID:    1,
		HasEventID: true,
		Rendering:  &model.Rendering{Message: "hello"},
	}

	ev, err := New().Process(rec, testSource)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"EventId": uint32(1), "EventLogName": "System.xml"}, ev.Properties)
	assert.Equal(t, "Information", ev.Level)
}

func TestProcess_OmitsMissingEventID(t *testing.T) {
	rec := renderedRecord()
	rec.EventID = 0
	rec.HasEventID = false

	ev, err := New().Process(rec, testSource)
	require.NoError(t, err)
	assert.NotContains(t, ev.Properties, "EventId")
	assert.Contains(t, ev.Properties, "Source")
}

func TestProcess_ZeroEventIDIsKept(t *testing.T) {
	rec := renderedRecord()
	rec.EventID = 0

	ev, err := New().Process(rec, testSource)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ev.Properties["EventId"])
}

func TestProcess_UnmappedSeverity(t *testing.T) {
	rec := renderedRecord()
	rec.Rendering.Level = ""
	rec.Level = 5

	_, err := New().Process(rec, testSource)
	assert.ErrorIs(t, err, model.ErrUnmappedSeverity)
	assert.NotErrorIs(t, err, model.ErrUnformattableRecord)
}

func TestProcess_Unformattable(t *testing.T) {
	rec := renderedRecord()
	rec.Rendering = nil

	_, err := New().Process(rec, testSource)
	assert.ErrorIs(t, err, model.ErrUnformattableRecord)
	assert.ErrorIs(t, err, model.ErrMetadataUnavailable)
}

func TestProcess_AllowUnrendered(t *testing.T) {
	rec := renderedRecord()
	rec.Rendering = nil

	ev, err := New(WithAllowUnrendered(true)).Process(rec, testSource)
	require.NoError(t, err)
	assert.Equal(t, "Error", ev.Level)
	assert.Equal(t, `Service Control Manager event 7000 param1="Spooler" param2="%%1053"`, ev.MessageTemplate)
}

func TestProcess_PropertiesSurvivePayloadRoundTrip(t *testing.T) {
	ev, err := New().Process(renderedRecord(), testSource)
	require.NoError(t, err)

	batch := model.EventBatch{ID: "b1", Source: testSource, Events: []model.CanonicalEvent{ev}}
	body, err := json.Marshal(batch.Payload())
	require.NoError(t, err)

	var decoded struct {
		Events []struct {
			Timestamp       time.Time
			Level           string
			MessageTemplate string
			Properties      map[string]json.RawMessage
		}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	require.NoError(t, dec.Decode(&decoded))
	require.Len(t, decoded.Events, 1)

	got := decoded.Events[0]
	assert.True(t, got.Timestamp.Equal(ev.Timestamp))
	assert.Equal(t, ev.Level, got.Level)
	assert.Equal(t, ev.MessageTemplate, got.MessageTemplate)
	require.Len(t, got.Properties, len(ev.Properties))
	for key, want := range ev.Properties {
		wantJSON, err := json.Marshal(want)
		require.NoError(t, err)
		assert.JSONEq(t, string(wantJSON), string(got.Properties[key]), "property %s", key)
	}
}

func TestProcess_UnknownTimestampSerialization(t *testing.T) {
	rec := renderedRecord()
	rec.TimeCreated = time.Time{}

	ev, err := New().Process(rec, testSource)
	require.NoError(t, err)

	body, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"Timestamp":"0001-01-01T00:00:00Z"`)
}

func TestProcess_Idempotent(t *testing.T) {
	eng := New()
	a, err := eng.Process(renderedRecord(), testSource)
	require.NoError(t, err)
	b, err := eng.Process(renderedRecord(), testSource)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
