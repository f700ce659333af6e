package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/evtship/internal/model"
)

// batchBuffer accumulates events for one source and hands them out as
// batches. A flush timer starts with the first event when window > 0.
// Not safe for concurrent use; each pipeline owns one.
type batchBuffer struct {
	src     model.LogSource
	window  time.Duration
	maxSize int

	pending []model.CanonicalEvent
	lastID  uint64
	timer   *time.Timer
}

func newBatchBuffer(src model.LogSource, window time.Duration, maxSize int) *batchBuffer {
	return &batchBuffer{
		src:     src,
		window:  window,
		maxSize: maxSize,
	}
}

// add appends an event. Returns true if the buffer is full and needs flushing.
func (b *batchBuffer) add(event model.CanonicalEvent, recordID uint64) bool {
	b.pending = append(b.pending, event)
	b.seen(recordID)
	if len(b.pending) == 1 && b.window > 0 {
		b.timer = time.NewTimer(b.window)
	}
	return len(b.pending) >= b.maxSize
}

// seen notes a record id that was read, including skipped records, so the
// bookmark can move past them.
func (b *batchBuffer) seen(recordID uint64) {
	if recordID > b.lastID {
		b.lastID = recordID
	}
}

// flushCh returns the timer's channel, or nil if no timer is active.
func (b *batchBuffer) flushCh() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// take returns the pending events as a batch and resets the buffer.
func (b *batchBuffer) take() model.EventBatch {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := model.EventBatch{
		ID:           uuid.NewString(),
		Source:       b.src,
		Events:       b.pending,
		LastRecordID: b.lastID,
	}
	b.pending = nil
	b.lastID = 0
	return batch
}

func (b *batchBuffer) len() int { return len(b.pending) }
