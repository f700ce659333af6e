//go:build windows

package wineventlog

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows"

	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

const (
	fetchSize = 16
	// waitSlice bounds each wait on the subscription signal so a cancelled
	// context is noticed promptly.
	waitSlice = 500 // ms
)

func init() {
	reader.Register(reader.SchemeWinEventLog, func(_ context.Context, target string, opts reader.OpenOptions) (reader.Reader, error) {
		return Open(target, opts)
	})
}

// Reader pulls records from a channel subscription. With a bookmark it
// replays everything after that record id, then follows new events; without
// one it only sees events raised after Open.
type Reader struct {
	channel string
	signal  windows.Handle
	sub     evtHandle
	log     *slog.Logger

	pending []evtHandle
	batch   []evtHandle
	*renderer
}

// Open subscribes to channel.
func Open(channel string, opts reader.OpenOptions) (*Reader, error) {
	signal, err := windows.CreateEvent(nil, 1, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("wineventlog: create signal: %w", err)
	}
	ch, err := windows.UTF16PtrFromString(channel)
	if err != nil {
		windows.CloseHandle(signal)
		return nil, fmt.Errorf("wineventlog: %w: channel %q: %v", model.ErrInvalidInput, channel, err)
	}

	query, flags := "*", uint32(evtSubscribeToFutureEvents)
	if opts.After > 0 {
		query = fmt.Sprintf("*[System[EventRecordID>%d]]", opts.After)
		flags = evtSubscribeStartAtOldestRecord
	}
	q, _ := windows.UTF16PtrFromString(query)

	sub, err := evtSubscribe(signal, ch, q, flags)
	if err != nil {
		windows.CloseHandle(signal)
		if err == windows.ERROR_EVT_CHANNEL_NOT_FOUND {
			return nil, fmt.Errorf("wineventlog: %w: channel %q not found", model.ErrInvalidInput, channel)
		}
		return nil, fmt.Errorf("wineventlog: subscribe %q: %w", channel, err)
	}

	log := opts.Log().With("reader", "wineventlog", "channel", channel)
	return &Reader{
		channel:  channel,
		signal:   signal,
		sub:      sub,
		log:      log,
		batch:    make([]evtHandle, fetchSize),
		renderer: newRenderer(log),
	}, nil
}

// Next blocks until a record is available or ctx is done.
func (r *Reader) Next(ctx context.Context) (model.NativeRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.NativeRecord{}, err
		}

		if len(r.pending) > 0 {
			h := r.pending[0]
			r.pending = r.pending[1:]
			rec, err := r.convert(h)
			evtClose(h)
			if err != nil {
				r.log.Warn("skipping unrenderable event", "error", err)
				continue
			}
			return rec, nil
		}

		n, err := evtNext(r.sub, r.batch, 0)
		if err == nil {
			r.pending = append(r.pending[:0], r.batch[:n]...)
			continue
		}
		if err != windows.ERROR_NO_MORE_ITEMS {
			return model.NativeRecord{}, fmt.Errorf("wineventlog: next on %q: %w", r.channel, err)
		}

		windows.ResetEvent(r.signal)
		ev, err := windows.WaitForSingleObject(r.signal, waitSlice)
		if err != nil {
			return model.NativeRecord{}, fmt.Errorf("wineventlog: wait on %q: %w", r.channel, err)
		}
		if ev != windows.WAIT_OBJECT_0 && ev != uint32(windows.WAIT_TIMEOUT) {
			return model.NativeRecord{}, fmt.Errorf("wineventlog: wait on %q returned %#x", r.channel, ev)
		}
	}
}

// Close cancels the subscription and releases all handles.
func (r *Reader) Close() error {
	for _, h := range r.pending {
		evtClose(h)
	}
	r.pending = nil
	r.renderer.close()
	evtClose(r.sub)
	return windows.CloseHandle(r.signal)
}
