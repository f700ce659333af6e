// Package lifecycle runs the service mode: one pipeline per live source,
// a cooperative stop, and an orderly drain before reporting Stopped.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

// State is the controller state. Transitions only move forward.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotStarted is returned by Wait on a controller that was never started.
var ErrNotStarted = errors.New("lifecycle: not started")

// Streamer runs one live source until its context ends.
// *pipeline.Pipeline implements it.
type Streamer interface {
	Stream(ctx context.Context, src model.LogSource, r reader.Reader) error
}

// Bookmarks supplies the resume point of each source.
// *bookmark.Store implements it.
type Bookmarks interface {
	Get(source string) uint64
}

// OpenFunc opens the reader for a source. reader.Open is the default.
type OpenFunc func(ctx context.Context, src model.LogSource, opts reader.OpenOptions) (reader.Reader, error)

// Config lists the live sources to run.
type Config struct {
	Sources []model.LogSource
}

// Deps are the collaborators of a Controller. Only Streamer is required.
type Deps struct {
	Streamer  Streamer
	Bookmarks Bookmarks
	Open      OpenFunc
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Controller owns the pipelines of all live sources.
type Controller struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	err    error
	done   chan struct{}
}

// New creates an Idle controller.
func New(cfg Config, deps Deps) *Controller {
	if deps.Open == nil {
		deps.Open = reader.Open
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger,
		done: make(chan struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the controller reaches Stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start validates the sources, opens a reader for each from its bookmark
// and launches the pipelines. It only succeeds from Idle. Cancelling ctx
// has the same effect as Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("lifecycle: start from %s", c.state)
	}
	if c.deps.Streamer == nil {
		return fmt.Errorf("%w: lifecycle: no streamer", model.ErrInvalidInput)
	}
	if err := validate(c.cfg.Sources); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	readers := make([]reader.Reader, 0, len(c.cfg.Sources))
	for _, src := range c.cfg.Sources {
		opts := reader.OpenOptions{Logger: c.log}
		if c.deps.Bookmarks != nil {
			opts.After = c.deps.Bookmarks.Get(src.Name)
		}
		r, err := c.deps.Open(runCtx, src, opts)
		if err != nil {
			for _, open := range readers {
				open.Close()
			}
			cancel()
			c.err = fmt.Errorf("lifecycle: %w", err)
			c.state = Stopped
			close(c.done)
			return c.err
		}
		c.log.Info("source opened", "source", src.Name, "channel", src.Handle, "after_record_id", opts.After)
		readers = append(readers, r)
	}

	g, gctx := errgroup.WithContext(runCtx)
	for i, src := range c.cfg.Sources {
		r := readers[i]
		g.Go(func() error {
			defer r.Close()
			c.deps.Metrics.SourcesRunning.Inc()
			defer c.deps.Metrics.SourcesRunning.Dec()

			if err := c.deps.Streamer.Stream(gctx, src, r); err != nil {
				c.log.Error("pipeline failed, stopping service", "source", src.Name, "channel", src.Handle, "error", err)
				return fmt.Errorf("source %s: %w", src.Name, err)
			}
			c.log.Info("pipeline stopped", "source", src.Name)
			return nil
		})
	}

	c.state = Running
	c.cancel = cancel

	go func() {
		<-gctx.Done()
		c.mu.Lock()
		if c.state == Running {
			c.state = Stopping
			c.log.Info("stopping", "sources", len(c.cfg.Sources))
		}
		c.mu.Unlock()
	}()
	go func() {
		err := g.Wait()
		cancel()
		c.mu.Lock()
		c.err = err
		c.state = Stopped
		c.mu.Unlock()
		c.log.Info("stopped")
		close(c.done)
	}()

	return nil
}

// Stop requests an orderly shutdown. Readers stop accepting records and
// each pipeline drains the batch it already holds. Stop returns without
// waiting; use Done or Wait. Calling Stop again, or before Start, does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return
	}
	c.state = Stopping
	c.log.Info("stop requested", "sources", len(c.cfg.Sources))
	c.cancel()
}

// Wait blocks until Stopped and returns the first pipeline failure, or nil
// after a clean stop.
func (c *Controller) Wait() error {
	c.mu.Lock()
	idle := c.state == Idle
	c.mu.Unlock()
	if idle {
		return ErrNotStarted
	}
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func validate(sources []model.LogSource) error {
	if len(sources) == 0 {
		return fmt.Errorf("%w: no live sources configured", model.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.Name == "" || src.Handle == "" {
			return fmt.Errorf("%w: source needs a name and a channel", model.ErrInvalidInput)
		}
		if seen[src.Name] {
			return fmt.Errorf("%w: duplicate source name %q", model.ErrInvalidInput, src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}
