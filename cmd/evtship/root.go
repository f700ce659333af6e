package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/evtship/internal/config"
	"github.com/crimson-sun/evtship/internal/logging"

	// Register reader implementations.
	_ "github.com/crimson-sun/evtship/internal/reader/archive"
	_ "github.com/crimson-sun/evtship/internal/reader/filetail"
	_ "github.com/crimson-sun/evtship/internal/reader/wineventlog"
)

// app carries the state shared by all subcommands.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
	log *slog.Logger

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "evtship",
		Short: "Ship Windows event logs to Seq",
		Long: `evtship reads Windows event log records, translates them into
structured events and posts them to a Seq server.

Use "ship" for exported archive files and "run" to follow live channels
as a long-running service.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text, json (default from config)")

	root.AddCommand(newShipCmd(a), newRunCmd(a), newValidateCmd(a))
	return root
}

// setup loads the configuration and sets up logging on stderr.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg
	a.log = logging.New(a.stderr, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}
