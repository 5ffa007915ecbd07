package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/janekbaraniewski/tokenpulse/internal/config"
	"github.com/janekbaraniewski/tokenpulse/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("TOKENPULSE_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	var window string

	root := cobra.Command{
		Use:   "tokenpulse",
		Short: "tokenpulse tracks coding-assistant token usage and session context pressure from local logs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), withWindow(cfg, window), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&window, "window", "", "accounting window: all, 1d, 3d, 7d or 30d (default from config)")

	root.AddCommand(
		newSnapshotCommand(&cfg, &window),
		newWatchCommand(&cfg, &window),
		newConfigCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withWindow applies a --window override on top of the loaded config.
func withWindow(cfg config.Config, window string) config.Config {
	if window != "" {
		cfg.Aggregation.Window = window
	}
	return cfg
}
