package main

import (
	"fmt"
	"log/slog"

	"github.com/crimson-sun/evtship/internal/config"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/output"
	"github.com/crimson-sun/evtship/internal/output/async"
	"github.com/crimson-sun/evtship/internal/output/file"
	"github.com/crimson-sun/evtship/internal/output/multi"
	"github.com/crimson-sun/evtship/internal/output/seq"
	"github.com/crimson-sun/evtship/internal/output/stdout"
)

// buildSink creates the configured sink, teeing into an NDJSON mirror file
// when sink.mirror_path is set.
func buildSink(cfg *config.Config, log *slog.Logger) (output.Sink, error) {
	var primary output.Sink
	switch cfg.Sink.Type {
	case config.SinkSeq:
		primary = seq.New(cfg.Sink.URL, seq.WithAPIKey(cfg.Sink.APIKey), seq.WithTimeout(cfg.Sink.Timeout))
	case config.SinkStdout:
		primary = stdout.New(cfg.Sink.Pretty)
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", model.ErrInvalidInput, cfg.Sink.Type)
	}
	return withMirror(primary, cfg.Sink.MirrorPath, log)
}

func withMirror(primary output.Sink, path string, log *slog.Logger) (output.Sink, error) {
	if path == "" {
		return primary, nil
	}
	f, err := file.New(path)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	mirror := async.New(f,
		async.WithLogger(log.With("mirror", path)),
		async.WithOnError(func(b model.EventBatch, err error) {
			log.Warn("mirror write failed", "path", path, "batch_id", b.ID, "error", err)
		}),
	)
	log.Info("mirroring delivered batches", "path", path)
	return multi.New(log, primary, mirror), nil
}
