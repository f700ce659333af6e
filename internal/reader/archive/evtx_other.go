//go:build !windows

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xrawsec/golang-evtx/evtx"

	"github.com/crimson-sun/evtship/internal/evtxml"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

var evtxMagic = []byte("ElfFile\x00")

// evtxReader parses binary logs without wevtapi. There is no publisher
// metadata off Windows, so its records never carry a rendering.
type evtxReader struct {
	path      string
	events    chan *evtx.GoEvtxMap
	closeFile func() error
	log       *slog.Logger
	n         int
	closed    bool
}

func openEVTX(path string, log *slog.Logger) (reader.Reader, error) {
	if err := checkMagic(path); err != nil {
		return nil, err
	}
	f, err := evtx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w: %s: %v", model.ErrInvalidInput, path, err)
	}
	return &evtxReader{
		path:      path,
		events:    f.Events(),
		closeFile: f.Close,
		log:       log.With("reader", "evtx", "path", path),
	}, nil
}

func checkMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()
	head := make([]byte, len(evtxMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, evtxMagic) {
		return fmt.Errorf("archive: %w: %s is not an evtx file", model.ErrInvalidInput, path)
	}
	return nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *evtxReader) Next(ctx context.Context) (model.NativeRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.NativeRecord{}, err
		}
		var (
			e  *evtx.GoEvtxMap
			ok bool
		)
		select {
		case <-ctx.Done():
			return model.NativeRecord{}, ctx.Err()
		case e, ok = <-r.events:
		}
		if !ok {
			return model.NativeRecord{}, io.EOF
		}
		r.n++
		if e == nil {
			continue
		}
		raw, err := json.Marshal(*e)
		if err != nil {
			return model.NativeRecord{}, fmt.Errorf("archive: %s record %d: %w", r.path, r.n, err)
		}
		rec, err := decodeEvtxJSON(raw)
		if err != nil {
			return model.NativeRecord{}, fmt.Errorf("archive: %s record %d: %w", r.path, r.n, err)
		}
		return rec, nil
	}
}

// Close releases the file once the parser has stopped producing events.
func (r *evtxReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	events, closeFile, log := r.events, r.closeFile, r.log
	go func() {
		for range events {
		}
		if err := closeFile(); err != nil {
			log.Debug("close failed", "error", err)
		}
	}()
	return nil
}

// decodeEvtxJSON converts one parsed event, in the parser's JSON shape,
// to a record. Scalars may be numbers or strings; EventID may also be an
// object holding Value and Qualifiers.
func decodeEvtxJSON(raw []byte) (model.NativeRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return model.NativeRecord{}, fmt.Errorf("%w: %v", evtxml.ErrMalformed, err)
	}
	root := m
	if ev, ok := m["Event"].(map[string]any); ok {
		root = ev
	}
	sys, ok := root["System"].(map[string]any)
	if !ok {
		return model.NativeRecord{}, fmt.Errorf("%w: no System element", evtxml.ErrMalformed)
	}

	rec := model.NativeRecord{
		Provider: text(field(sys["Provider"], "Name")),
		Computer: text(sys["Computer"]),
		Channel:  text(sys["Channel"]),
	}
	if rec.Provider == "" {
		rec.Provider = text(field(sys["Provider"], "EventSourceName"))
	}
	if v, err := strconv.ParseUint(text(sys["EventID"]), 10, 32); err == nil {
		rec.EventID = uint32(v)
		rec.HasEventID = true
	}
	if v, err := strconv.ParseUint(text(sys["Level"]), 10, 8); err == nil {
		rec.Level = uint8(v)
	}
	if v, err := strconv.ParseUint(text(sys["EventRecordID"]), 10, 64); err == nil {
		rec.RecordID = v
	}
	if ts := text(field(sys["TimeCreated"], "SystemTime")); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.TimeCreated = t.UTC()
		}
	}

	if data, ok := root["EventData"].(map[string]any); ok && len(data) > 0 {
		rec.EventData = make(map[string]string, len(data))
		for k, v := range data {
			rec.EventData[k] = text(v)
		}
	}
	return rec, nil
}

func field(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return nil
}

// text flattens a scalar, or an element object's Value or #text, to a
// trimmed string.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case map[string]any:
		if val, ok := x["Value"]; ok {
			return text(val)
		}
		return text(x["#text"])
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
