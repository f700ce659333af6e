// Package evtxml decodes Windows event records in their XML rendering, as
// produced by wevtutil, Event Viewer "Save as XML" exports, and EvtRender.
package evtxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/crimson-sun/evtship/internal/model"
)

// ErrMalformed reports XML that is not a well-formed event element.
var ErrMalformed = errors.New("evtxml: malformed event")

// Decoder reads a stream of <Event> elements. The stream may be wrapped in
// an <Events> root (Event Viewer exports) or be a bare concatenation of
// events (wevtutil output). Byte order marks select UTF-8 or UTF-16.
type Decoder struct {
	dec *xml.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	utf8 := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	d := xml.NewDecoder(utf8)
	d.CharsetReader = charsetReader
	return &Decoder{dec: d}
}

// charsetReader honours legacy encodings named in the XML declaration.
// UTF-16 labels pass through: the BOM already selected the transcoder.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.HasPrefix(strings.ToLower(label), "utf-16") || strings.EqualFold(label, "unicode") {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("evtxml: unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Next returns the next record in the stream, or io.EOF when exhausted.
func (d *Decoder) Next() (model.NativeRecord, error) {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return model.NativeRecord{}, io.EOF
			}
			return model.NativeRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Event" {
			continue
		}
		var ev xmlEvent
		if err := d.dec.DecodeElement(&ev, &start); err != nil {
			return model.NativeRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return ev.record(), nil
	}
}

// Offset returns the input offset just past the last decoded token.
func (d *Decoder) Offset() int64 {
	return d.dec.InputOffset()
}

// Parse decodes a single UTF-8 <Event> element.
func Parse(data []byte) (model.NativeRecord, error) {
	rec, err := NewDecoder(bytes.NewReader(data)).Next()
	if errors.Is(err, io.EOF) {
		return model.NativeRecord{}, fmt.Errorf("%w: no Event element", ErrMalformed)
	}
	return rec, err
}

func (ev *xmlEvent) record() model.NativeRecord {
	sys := ev.System
	rec := model.NativeRecord{
		Provider: strings.TrimSpace(sys.Provider.Name),
		Computer: strings.TrimSpace(sys.Computer),
		Channel:  strings.TrimSpace(sys.Channel),
	}
	if rec.Provider == "" {
		rec.Provider = strings.TrimSpace(sys.Provider.EventSourceName)
	}
	if v, err := strconv.ParseUint(strings.TrimSpace(sys.EventID), 10, 32); err == nil {
		rec.EventID = uint32(v)
		rec.HasEventID = true
	}
	if v, err := strconv.ParseUint(strings.TrimSpace(sys.Level), 10, 8); err == nil {
		rec.Level = uint8(v)
	}
	if v, err := strconv.ParseUint(strings.TrimSpace(sys.EventRecordID), 10, 64); err == nil {
		rec.RecordID = v
	}
	rec.TimeCreated = parseSystemTime(sys.TimeCreated.SystemTime)

	if ev.EventData != nil && len(ev.EventData.Data) > 0 {
		rec.EventData = make(map[string]string, len(ev.EventData.Data))
		for i, d := range ev.EventData.Data {
			name := d.Name
			if name == "" {
				name = "Data" + strconv.Itoa(i)
			}
			rec.EventData[name] = strings.TrimSpace(d.Value)
		}
	}

	if ri := ev.RenderingInfo; ri != nil {
		msg := strings.TrimSpace(ri.Message)
		lvl := strings.TrimSpace(ri.Level)
		if msg != "" || lvl != "" {
			rec.Rendering = &model.Rendering{Level: lvl, Message: msg}
		}
	}
	return rec
}

// parseSystemTime parses the SystemTime attribute. Unparseable or missing
// values yield the zero time, which callers treat as unknown.
func parseSystemTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
