package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

// Result summarizes one source in batch mode.
type Result struct {
	Source    model.LogSource
	Read      int
	Skipped   int
	Delivered int
	Batches   int
	Err       error // nil when the whole source was delivered
}

// Summary covers a batch run over several sources, in processing order.
type Summary struct {
	Sources []Result
}

// Failed returns the sources that did not complete.
func (s Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Sources {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Totals adds up the per-source counters.
func (s Summary) Totals() (read, skipped, delivered int) {
	for _, r := range s.Sources {
		read += r.Read
		skipped += r.Skipped
		delivered += r.Delivered
	}
	return read, skipped, delivered
}

// Replay reads r to the end, delivering full batches as they fill and the
// remainder at the end. Batches never span sources. Any delivery or read
// error aborts the source and is returned alongside the partial Result.
func (p *Pipeline) Replay(ctx context.Context, src model.LogSource, r reader.Reader) (Result, error) {
	res := Result{Source: src}
	buf := newBatchBuffer(src, 0, p.batchSize)

	deliver := func() error {
		batch := buf.take()
		if batch.Len() == 0 {
			return nil
		}
		if err := p.dispatcher.Deliver(ctx, batch); err != nil {
			return err
		}
		res.Batches++
		res.Delivered += batch.Len()
		return nil
	}

	for {
		rec, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read %s: %w", src.Name, err)
		}
		res.Read++

		ev, ok := p.translate(rec, src)
		if !ok {
			res.Skipped++
			continue
		}
		if buf.add(ev, rec.RecordID) {
			if err := deliver(); err != nil {
				return res, err
			}
		}
	}
	if err := deliver(); err != nil {
		return res, err
	}
	return res, nil
}

// Ship replays every source in order, one at a time. A failing source is
// recorded in the Summary and the run moves on to the next; only
// cancellation of ctx stops the run early.
func (p *Pipeline) Ship(ctx context.Context, sources []model.LogSource) Summary {
	var sum Summary
	for _, src := range sources {
		if ctx.Err() != nil {
			sum.Sources = append(sum.Sources, Result{Source: src, Err: ctx.Err()})
			continue
		}
		res := p.shipOne(ctx, src)
		sum.Sources = append(sum.Sources, res)
	}
	return sum
}

func (p *Pipeline) shipOne(ctx context.Context, src model.LogSource) Result {
	log := p.log.With("source", src.Name)

	r, err := reader.Open(ctx, src, reader.OpenOptions{Logger: p.log})
	if err != nil {
		log.Error("cannot open source", "error", err)
		return Result{Source: src, Err: err}
	}
	defer r.Close()

	log.Info("replaying source", "path", src.Handle)
	res, err := p.Replay(ctx, src, r)
	res.Err = err
	if err != nil {
		log.Error("source aborted", "delivered", res.Delivered, "error", err)
		return res
	}
	log.Info("source done", "read", res.Read, "skipped", res.Skipped, "delivered", res.Delivered, "batches", res.Batches)
	return res
}
