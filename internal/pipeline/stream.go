package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

type readResult struct {
	rec model.NativeRecord
	err error
}

// Stream runs a live source until ctx is cancelled or the reader fails.
// Batches are delivered when full or when the flush interval elapses after
// their first event. After cancellation the batch already accumulated is
// delivered once more, on a context that outlives ctx by the drain timeout.
// Returns nil on a clean stop.
func (p *Pipeline) Stream(ctx context.Context, src model.LogSource, r reader.Reader) error {
	log := p.log.With("source", src.Name)

	sendCtx, cancelSend := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSend()
	drain := startDrainDeadline(ctx, p.drainTimeout, cancelSend)
	defer drain.stop()

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	records := make(chan readResult)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			rec, err := r.Next(readCtx)
			select {
			case records <- readResult{rec: rec, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	buf := newBatchBuffer(src, p.flushInterval, p.batchSize)
	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case res := <-records:
			if ctx.Err() != nil {
				break loop
			}
			if res.err != nil {
				runErr = fmt.Errorf("read %s: %w", src.Name, res.err)
				break loop
			}
			ev, ok := p.translate(res.rec, src)
			if !ok {
				buf.seen(res.rec.RecordID)
				continue
			}
			if buf.add(ev, res.rec.RecordID) {
				if err := p.flush(sendCtx, buf); err != nil {
					runErr = err
					break loop
				}
			}
		case <-buf.flushCh():
			if err := p.flush(sendCtx, buf); err != nil {
				runErr = err
				break loop
			}
		}
	}

	// No new records are accepted past this point.
	cancelRead()
	<-readerDone

	// Deliver what was accumulated before the stop, exactly once.
	if n := buf.len(); n > 0 {
		log.Info("draining pending batch", "events", n)
	}
	if err := p.flush(sendCtx, buf); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// flush delivers the buffered batch. Delivery failures go to the
// dead-letter handler; the bookmark advances once the batch is either
// acknowledged or handed off. A failure caused by the drain deadline
// abandons the batch without advancing the bookmark.
func (p *Pipeline) flush(ctx context.Context, buf *batchBuffer) error {
	batch := buf.take()
	if batch.Len() == 0 {
		return p.commit(batch)
	}

	err := p.dispatcher.Deliver(ctx, batch)
	if err == nil {
		return p.commit(batch)
	}
	if ctx.Err() != nil {
		p.log.Warn("drain deadline passed, abandoning batch",
			"source", batch.Source.Name, "batch_id", batch.ID, "events", batch.Len(), "error", err)
		return nil
	}
	if !errors.Is(err, model.ErrDeliveryFailed) && !errors.Is(err, model.ErrDeliveryRejected) {
		return fmt.Errorf("deliver batch %s: %w", batch.ID, err)
	}

	p.log.Error("batch not delivered", "source", batch.Source.Name, "batch_id", batch.ID, "error", err)
	if dlErr := p.deadLetter.Handle(ctx, batch, err); dlErr != nil {
		return fmt.Errorf("dead-letter batch %s: %w", batch.ID, dlErr)
	}
	return p.commit(batch)
}

func (p *Pipeline) commit(batch model.EventBatch) error {
	if p.bookmarks == nil || batch.LastRecordID == 0 {
		return nil
	}
	if err := p.bookmarks.Commit(batch.Source.Name, batch.LastRecordID); err != nil {
		p.log.Warn("bookmark not saved", "source", batch.Source.Name, "record_id", batch.LastRecordID, "error", err)
	}
	return nil
}

// drainDeadline calls cancel once timeout has passed after ctx is done,
// unless stop runs first.
type drainDeadline struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	detach  func() bool
}

func startDrainDeadline(ctx context.Context, timeout time.Duration, cancel func()) *drainDeadline {
	d := &drainDeadline{}
	d.detach = context.AfterFunc(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.stopped {
			d.timer = time.AfterFunc(timeout, cancel)
		}
	})
	return d
}

// armed reports whether the timer is running.
func (d *drainDeadline) armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// stop detaches from ctx and releases the timer if it was started.
func (d *drainDeadline) stop() {
	d.detach()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
