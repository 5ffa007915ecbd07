package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/config"
	"github.com/janekbaraniewski/tokenpulse/internal/core"
	"github.com/janekbaraniewski/tokenpulse/internal/engine"
	"github.com/janekbaraniewski/tokenpulse/internal/polling"
	"github.com/spf13/cobra"
)

func newSnapshotCommand(cfg *config.Config, window *string) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print one usage snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := newPipeline(withWindow(*cfg, *window)).aggregator.Aggregate(time.Now())
			return writeSnapshot(cmd.OutOrStdout(), snap, compact)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "emit single-line JSON")
	return cmd
}

func writeSnapshot(w io.Writer, snap core.UsageSnapshot, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

func newWatchCommand(cfg *config.Config, window *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh continuously and print a status line per change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), withWindow(*cfg, *window), cmd.OutOrStdout())
		},
	}
}

func runWatch(parent context.Context, cfg config.Config, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPipeline(cfg)
	n := p.notifier(cfg)
	if err := n.Start(); err != nil {
		return fmt.Errorf("starting change notifier: %w", err)
	}
	defer n.Stop()

	eng := engine.New(p.aggregator, engine.Options{
		Interval: cfg.BaseInterval(),
		Adaptive: polling.NewAdaptive(cfg.Polling.UnchangedThreshold, cfg.MaxInterval()),
		Events:   n.Events(),
	})

	var last string
	eng.OnUpdate(func(snap core.UsageSnapshot) {
		fp := snap.Fingerprint()
		if fp == last {
			return
		}
		last = fp
		fmt.Fprintln(out, formatStatus(snap))
	})

	eng.Run(ctx)
	return nil
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the settings file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with default values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveTo(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")
	cmd.AddCommand(initCmd)
	return cmd
}
