// Package config loads evtship settings from a YAML file, with defaults
// and EVTSHIP_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/crimson-sun/evtship/internal/deadletter"
	"github.com/crimson-sun/evtship/internal/dispatch"
	"github.com/crimson-sun/evtship/internal/model"
)

const (
	SinkSeq    = "seq"
	SinkStdout = "stdout"
)

// Config holds all evtship configuration.
type Config struct {
	Sink       SinkConfig       `mapstructure:"sink"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Sources    []SourceConfig   `mapstructure:"sources"`
	Bookmarks  BookmarksConfig  `mapstructure:"bookmarks"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Translate  TranslateConfig  `mapstructure:"translate"`
}

type SinkConfig struct {
	Type       string        `mapstructure:"type"`
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Pretty     bool          `mapstructure:"pretty"`      // stdout only
	MirrorPath string        `mapstructure:"mirror_path"` // NDJSON copy of delivered batches
}

type DispatchConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	MaxInFlight    int           `mapstructure:"max_in_flight"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// SourceConfig names one live channel. Channel is a Windows channel name,
// or a reader scheme such as "file:/var/log/app.xml".
type SourceConfig struct {
	Name    string `mapstructure:"name"`
	Channel string `mapstructure:"channel"`
}

type BookmarksConfig struct {
	Path string `mapstructure:"path"`
}

type DeadLetterConfig struct {
	Policy       string `mapstructure:"policy"`
	SpoolDir     string `mapstructure:"spool_dir"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes"`
	NATSURL      string `mapstructure:"nats_url"`
	Stream       string `mapstructure:"stream"`
	Subject      string `mapstructure:"subject"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ShutdownConfig struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ArchiveConfig struct {
	Extension string `mapstructure:"extension"`
}

type TranslateConfig struct {
	AllowUnrendered bool `mapstructure:"allow_unrendered"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sink.type", SinkSeq)
	v.SetDefault("sink.url", "http://localhost:5341")
	v.SetDefault("sink.api_key", "")
	v.SetDefault("sink.timeout", "10s")
	v.SetDefault("sink.pretty", false)
	v.SetDefault("sink.mirror_path", "")
	v.SetDefault("dispatch.batch_size", 100)
	v.SetDefault("dispatch.flush_interval", "2s")
	v.SetDefault("dispatch.max_in_flight", 2)
	v.SetDefault("dispatch.max_retries", 5)
	v.SetDefault("dispatch.initial_backoff", "500ms")
	v.SetDefault("dispatch.max_backoff", "10s")
	v.SetDefault("bookmarks.path", "./data/bookmarks.yaml")
	v.SetDefault("dead_letter.policy", deadletter.PolicyDrop)
	v.SetDefault("dead_letter.spool_dir", "./data/deadletter")
	v.SetDefault("dead_letter.max_file_bytes", 64<<20)
	v.SetDefault("dead_letter.nats_url", "nats://localhost:4222")
	v.SetDefault("dead_letter.stream", "EVTSHIP_DEADLETTER")
	v.SetDefault("dead_letter.subject", "evtship.deadletter")
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("shutdown.drain_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("archive.extension", ".evtx")
	v.SetDefault("translate.allow_unrendered", false)
}

// Load reads the YAML file at path, if given, over the defaults.
// EVTSHIP_<SECTION>_<KEY> environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", model.ErrInvalidInput, path, err)
		}
	}

	v.SetEnvPrefix("EVTSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", model.ErrInvalidInput, err)
	}
	return &cfg, nil
}

// Validate checks the settings shared by all commands. Live sources are
// checked by ValidateService.
func (c *Config) Validate() error {
	var errs []error
	switch c.Sink.Type {
	case SinkSeq:
		u, err := url.Parse(c.Sink.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("sink.url %q is not an http(s) URL", c.Sink.URL))
		}
	case SinkStdout:
	default:
		errs = append(errs, fmt.Errorf("sink.type %q is not one of seq, stdout", c.Sink.Type))
	}
	if c.Dispatch.BatchSize <= 0 {
		errs = append(errs, errors.New("dispatch.batch_size must be positive"))
	}
	if c.Dispatch.MaxInFlight <= 0 {
		errs = append(errs, errors.New("dispatch.max_in_flight must be positive"))
	}
	if c.Dispatch.MaxRetries < 0 {
		errs = append(errs, errors.New("dispatch.max_retries must not be negative"))
	}
	if c.Dispatch.FlushInterval <= 0 || c.Dispatch.InitialBackoff <= 0 || c.Dispatch.MaxBackoff <= 0 {
		errs = append(errs, errors.New("dispatch intervals must be positive"))
	}
	if c.Dispatch.MaxBackoff < c.Dispatch.InitialBackoff {
		errs = append(errs, errors.New("dispatch.max_backoff is below dispatch.initial_backoff"))
	}
	if c.Shutdown.DrainTimeout <= 0 {
		errs = append(errs, errors.New("shutdown.drain_timeout must be positive"))
	}
	switch c.DeadLetter.Policy {
	case deadletter.PolicyDrop:
	case deadletter.PolicySpool:
		if c.DeadLetter.SpoolDir == "" {
			errs = append(errs, errors.New("dead_letter.spool_dir is required for the spool policy"))
		}
	case deadletter.PolicyJetStream:
		if c.DeadLetter.NATSURL == "" || c.DeadLetter.Stream == "" || c.DeadLetter.Subject == "" {
			errs = append(errs, errors.New("dead_letter nats_url, stream and subject are required for the jetstream policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("dead_letter.policy %q is not one of drop, spool, jetstream", c.DeadLetter.Policy))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// ValidateService runs Validate and also requires at least one live
// source, each with a unique name and a channel.
func (c *Config) ValidateService() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", model.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" || s.Channel == "" {
			return fmt.Errorf("%w: sources[%d] needs a name and a channel", model.ErrInvalidInput, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source name %q", model.ErrInvalidInput, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// LiveSources returns the configured channels as live sources.
func (c *Config) LiveSources() []model.LogSource {
	out := make([]model.LogSource, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, model.LogSource{Name: s.Name, Handle: s.Channel, Kind: model.Live})
	}
	return out
}

// Policy returns the retry policy of the dispatcher.
func (c *Config) Policy() dispatch.Policy {
	return dispatch.Policy{
		MaxRetries:     c.Dispatch.MaxRetries,
		InitialBackoff: c.Dispatch.InitialBackoff,
		MaxBackoff:     c.Dispatch.MaxBackoff,
		MaxInFlight:    c.Dispatch.MaxInFlight,
	}
}

// DeadLetterOptions returns the dead-letter settings; the caller adds the
// logger and metrics.
func (c *Config) DeadLetterOptions() deadletter.Options {
	return deadletter.Options{
		Policy:       c.DeadLetter.Policy,
		SpoolDir:     c.DeadLetter.SpoolDir,
		MaxFileBytes: c.DeadLetter.MaxFileBytes,
		NATSURL:      c.DeadLetter.NATSURL,
		Stream:       c.DeadLetter.Stream,
		Subject:      c.DeadLetter.Subject,
	}
}
