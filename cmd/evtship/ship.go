package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/evtship/internal/config"
	"github.com/crimson-sun/evtship/internal/dispatch"
	"github.com/crimson-sun/evtship/internal/engine"
	"github.com/crimson-sun/evtship/internal/output"
	"github.com/crimson-sun/evtship/internal/output/stdout"
	"github.com/crimson-sun/evtship/internal/pipeline"
	"github.com/crimson-sun/evtship/internal/source"
)

var errSourcesFailed = errors.New("one or more sources were not delivered")

type shipFlags struct {
	ext         string
	sinkURL     string
	apiKey      string
	batchSize   int
	dryRun      bool
	failOnError bool
}

func newShipCmd(a *app) *cobra.Command {
	var f shipFlags
	cmd := &cobra.Command{
		Use:   "ship PATH",
		Short: "Ship exported event log archives once",
		Long: `Ship reads every archive under PATH (a file, or a directory searched
recursively for the archive extension) and delivers its events in order,
one source at a time. A source that fails is reported and skipped.

Files ending in .evtx are read as binary event logs; any other file is
read as rendered event XML, such as the output of "wevtutil qe /f:RenderedXml".`,
		Example: `  evtship ship ./exports --sink-url http://seq:5341 --api-key $SEQ_KEY
  evtship ship System.xml --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return a.ship(cmd, path, f)
		},
	}
	cmd.Flags().StringVar(&f.ext, "ext", "", "archive file extension (default from config, .evtx)")
	cmd.Flags().StringVar(&f.sinkURL, "sink-url", "", "Seq server URL (default from config)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "Seq API key")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "events per request (default from config, 100)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print events to stdout instead of sending them")
	cmd.Flags().BoolVar(&f.failOnError, "fail-on-error", false, "exit non-zero when any source failed")
	return cmd
}

func (a *app) ship(cmd *cobra.Command, path string, f shipFlags) error {
	cfg := a.cfg
	flags := cmd.Flags()
	if flags.Changed("ext") {
		cfg.Archive.Extension = f.ext
	}
	if flags.Changed("sink-url") {
		cfg.Sink.Type = config.SinkSeq
		cfg.Sink.URL = f.sinkURL
	}
	if flags.Changed("api-key") {
		cfg.Sink.APIKey = f.apiKey
	}
	if flags.Changed("batch-size") {
		cfg.Dispatch.BatchSize = f.batchSize
	}
	if f.dryRun {
		cfg.Sink.Type = config.SinkStdout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sources, err := source.Resolve(path, cfg.Archive.Extension)
	if err != nil {
		return err
	}
	a.log.Info("resolved sources", "path", path, "count", len(sources))

	var sink output.Sink
	if f.dryRun {
		sink = stdout.NewWriter(a.stdout, cfg.Sink.Pretty)
	} else if sink, err = buildSink(cfg, a.log); err != nil {
		return err
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := dispatch.New(sink, cfg.Policy(), dispatch.WithLogger(a.log))
	eng := engine.New(engine.WithAllowUnrendered(cfg.Translate.AllowUnrendered))
	p := pipeline.New(eng, d,
		pipeline.WithBatchSize(cfg.Dispatch.BatchSize),
		pipeline.WithLogger(a.log),
	)

	summary := p.Ship(ctx, sources)
	printSummary(a.stderr, summary)

	if f.failOnError && len(summary.Failed()) > 0 {
		return fmt.Errorf("%w: %d of %d", errSourcesFailed, len(summary.Failed()), len(summary.Sources))
	}
	return nil
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)

func printSummary(w io.Writer, s pipeline.Summary) {
	for _, r := range s.Sources {
		if r.Err != nil {
			failColor.Fprintf(w, "✗ %s: %v (delivered %d of %d read)\n", r.Source.Name, r.Err, r.Delivered, r.Read)
			continue
		}
		okColor.Fprintf(w, "✓ %s: delivered %d in %d batches (read %d, skipped %d)\n",
			r.Source.Name, r.Delivered, r.Batches, r.Read, r.Skipped)
	}
	read, skipped, delivered := s.Totals()
	infoColor.Fprintf(w, "%d sources, %d failed: read %d, skipped %d, delivered %d\n",
		len(s.Sources), len(s.Failed()), read, skipped, delivered)
}
