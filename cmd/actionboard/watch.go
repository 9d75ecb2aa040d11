package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"Actionboard/internal/config"
	"Actionboard/internal/github"
	"Actionboard/internal/logging"
	"Actionboard/internal/metrics"
	"Actionboard/internal/models"
	"Actionboard/internal/poller"
	"Actionboard/internal/retry"
)

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print snapshots of recent workflow runs to the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), configPath, cmd.Flags(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (optional)")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func runWatch(ctx context.Context, configPath string, flags *pflag.FlagSet, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logger.Close()

	met := metrics.NewMetrics(prometheus.NewRegistry())
	ghClient := github.NewClient(cfg.GitHub, met, logger.Logger)
	p := poller.New(ghClient, poller.ConfigFrom(cfg.Poller), retry.FromConfig(cfg.Retry), met, logger.Logger)

	return watch(ctx, p, out)
}

type snapshotSource interface {
	Snapshots(ctx context.Context) iter.Seq2[models.Snapshot, error]
}

// watch prints every snapshot until ctx is done or the sequence fails
func watch(ctx context.Context, src snapshotSource, out io.Writer) error {
	for snapshot, err := range src.Snapshots(ctx) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := printSnapshot(out, snapshot, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func printSnapshot(w io.Writer, snapshot models.Snapshot, now time.Time) error {
	fmt.Fprintf(w, "\n%s  %d runs\n", now.Format(time.TimeOnly), len(snapshot.Runs))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tWORKFLOW\tTITLE\tEVENT\tSTATUS\tCREATED")
	for _, run := range snapshot.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.RepositoryName,
			run.WorkflowName,
			truncate(run.DisplayTitle, 48),
			run.Event,
			run.Status,
			age(now, run.CreatedAt),
		)
	}
	return tw.Flush()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
