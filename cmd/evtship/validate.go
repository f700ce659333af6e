package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			check := cfg.Validate
			if len(cfg.Sources) > 0 {
				check = cfg.ValidateService
			}
			if err := check(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			okColor.Fprintln(w, "✓ configuration is valid")
			fmt.Fprintf(w, "  sink:        %s %s\n", cfg.Sink.Type, cfg.Sink.URL)
			fmt.Fprintf(w, "  batching:    %d events, flush %s, %d in flight\n",
				cfg.Dispatch.BatchSize, cfg.Dispatch.FlushInterval, cfg.Dispatch.MaxInFlight)
			fmt.Fprintf(w, "  retries:     %d, backoff %s to %s\n",
				cfg.Dispatch.MaxRetries, cfg.Dispatch.InitialBackoff, cfg.Dispatch.MaxBackoff)
			fmt.Fprintf(w, "  dead letter: %s\n", cfg.DeadLetter.Policy)
			fmt.Fprintf(w, "  bookmarks:   %s\n", cfg.Bookmarks.Path)
			fmt.Fprintf(w, "  sources:     %d\n", len(cfg.Sources))
			for _, s := range cfg.Sources {
				fmt.Fprintf(w, "    - %s (%s)\n", s.Name, s.Channel)
			}
			return nil
		},
	}
}
