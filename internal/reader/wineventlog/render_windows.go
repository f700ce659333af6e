//go:build windows

package wineventlog

import (
	"fmt"
	"log/slog"

	"github.com/crimson-sun/evtship/internal/evtxml"
	"github.com/crimson-sun/evtship/internal/model"
)

// renderer turns event handles into records. It caches publisher metadata
// handles for the lifetime of the reader that owns it.
type renderer struct {
	log        *slog.Logger
	render     []uint16
	publishers map[string]evtHandle
}

func newRenderer(log *slog.Logger) *renderer {
	return &renderer{log: log, publishers: make(map[string]evtHandle)}
}

// convert renders the event XML and, when the provider's metadata can be
// opened, attaches the formatted message and level name.
func (r *renderer) convert(h evtHandle) (model.NativeRecord, error) {
	xmlText, buf, err := evtRenderXML(h, r.render)
	r.render = buf
	if err != nil {
		return model.NativeRecord{}, fmt.Errorf("render: %w", err)
	}
	rec, err := evtxml.Parse([]byte(xmlText))
	if err != nil {
		return model.NativeRecord{}, err
	}
	if rec.Rendering != nil || rec.Provider == "" {
		return rec, nil
	}

	meta := r.publisher(rec.Provider)
	if meta == 0 {
		return rec, nil
	}
	msg, msgErr := evtFormat(meta, h, evtFormatMessageEvent)
	lvl, _ := evtFormat(meta, h, evtFormatMessageLevel)
	if msgErr != nil {
		r.log.Debug("no formatted message", "provider", rec.Provider, "record_id", rec.RecordID, "error", msgErr)
	}
	if msg != "" || lvl != "" {
		rec.Rendering = &model.Rendering{Level: lvl, Message: msg}
	}
	return rec, nil
}

// publisher returns cached publisher metadata, 0 when unavailable.
func (r *renderer) publisher(provider string) evtHandle {
	if h, ok := r.publishers[provider]; ok {
		return h
	}
	h, err := evtOpenPublisherMetadata(provider)
	if err != nil {
		r.log.Debug("publisher metadata unavailable", "provider", provider, "error", err)
		h = 0
	}
	r.publishers[provider] = h
	return h
}

func (r *renderer) close() {
	for _, h := range r.publishers {
		evtClose(h)
	}
	r.publishers = nil
}
