package main

import (
	"fmt"
	"log/slog"

	"github.com/duecycle/duecycle/internal/engine"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher on a schedule",
		Long: `Run dispatcher passes on a cron schedule until interrupted. One pass
runs immediately on startup so a machine that was off at the scheduled
time still catches up.

The schedule comes from the scheduler.cron config key (standard 5-field
cron syntax); the default fires daily at 06:00.`,
		RunE: runServe,
	}

	cmd.Flags().String("schedule", "", "cron schedule override (e.g. \"0 6 * * *\")")
	_ = viper.BindPFlag("scheduler.cron", cmd.Flags().Lookup("schedule"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	schedule := viper.GetString("scheduler.cron")
	if schedule == "" {
		schedule = "0 6 * * *"
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	dispatcher := engine.New(store, recurrence.NewCalculator(), recurrence.NewValidator())
	pass := func() {
		stats, runErr := dispatcher.Run(ctx)
		if runErr != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Dispatch pass failed", "error", runErr)
			return
		}
		slog.Info("Scheduled dispatch pass finished",
			"materialized", stats.Materialized,
			"skipped", stats.Skipped,
			"anomalies", stats.Anomalies)
	}

	// Catch-up pass before the first scheduled fire.
	pass()
	if ctx.Err() != nil {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, pass); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	slog.Info("Dispatcher scheduler started", "schedule", schedule)
	scheduler.Start()

	<-ctx.Done()
	waitForJobs(scheduler)
	slog.Info("Dispatcher scheduler stopped")
	return nil
}

// waitForJobs stops the scheduler and blocks until any in-flight pass
// completes.
func waitForJobs(scheduler *cron.Cron) {
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
}
