package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/evtship/internal/bookmark"
	"github.com/crimson-sun/evtship/internal/deadletter"
	"github.com/crimson-sun/evtship/internal/dispatch"
	"github.com/crimson-sun/evtship/internal/engine"
	"github.com/crimson-sun/evtship/internal/lifecycle"
	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/pipeline"
	"github.com/crimson-sun/evtship/internal/server"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Follow live channels until stopped",
		Long: `Run tails every configured source and ships new records as they
arrive, resuming each source after its last acknowledged record.
SIGINT or SIGTERM stops reading, delivers the batches already buffered
and exits.`,
		Example: `  evtship run --config /etc/evtship/evtship.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

// run wires the service and blocks until it has stopped. Cancelling ctx
// stops it.
func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.ValidateService(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, err := bookmark.Open(cfg.Bookmarks.Path)
	if err != nil {
		return err
	}

	dlOpts := cfg.DeadLetterOptions()
	dlOpts.Logger = a.log
	dlOpts.Metrics = m
	dl, err := deadletter.New(ctx, dlOpts)
	if err != nil {
		return err
	}
	defer dl.Close()

	sink, err := buildSink(cfg, a.log)
	if err != nil {
		return err
	}
	defer sink.Close()

	d := dispatch.New(sink, cfg.Policy(), dispatch.WithLogger(a.log), dispatch.WithMetrics(m))
	eng := engine.New(engine.WithAllowUnrendered(cfg.Translate.AllowUnrendered))
	p := pipeline.New(eng, d,
		pipeline.WithBatchSize(cfg.Dispatch.BatchSize),
		pipeline.WithFlushInterval(cfg.Dispatch.FlushInterval),
		pipeline.WithDrainTimeout(cfg.Shutdown.DrainTimeout),
		pipeline.WithLogger(a.log),
		pipeline.WithMetrics(m),
		pipeline.WithDeadLetter(dl),
		pipeline.WithBookmarks(store),
	)

	ctrl := lifecycle.New(lifecycle.Config{Sources: cfg.LiveSources()}, lifecycle.Deps{
		Streamer:  p,
		Bookmarks: store,
		Logger:    a.log,
		Metrics:   m,
	})

	if cfg.Metrics.Addr != "" {
		srv := server.New(cfg.Metrics.Addr, reg, ctrl.State, a.log)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	a.log.Info("evtship starting",
		"sources", len(cfg.Sources),
		"sink", cfg.Sink.Type,
		"dead_letter", cfg.DeadLetter.Policy,
		"bookmarks", cfg.Bookmarks.Path,
	)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	err = ctrl.Wait()
	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}
	a.log.Info("evtship stopped", "bookmarks", store.Snapshot())
	return nil
}
