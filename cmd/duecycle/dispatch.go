package main

import (
	"fmt"
	"log/slog"

	"github.com/duecycle/duecycle/internal/cli"
	"github.com/duecycle/duecycle/internal/engine"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/spf13/cobra"
)

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatcher pass",
		Long: `Walk every active obligation, materialize each occurrence due up to
today as a ledger entry, and advance the rule's processed marker.

Re-running is safe: an occurrence is materialized at most once.`,
		RunE: runDispatch,
	}
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

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
	stats, err := dispatcher.Run(ctx)
	if err != nil {
		return fmt.Errorf("dispatch pass failed: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf( //nolint:forbidigo // User-facing output
		"Dispatched %d obligation(s): %d materialized, %d skipped, %d anomalies (%s)",
		stats.Obligations, stats.Materialized, stats.Skipped, stats.Anomalies,
		stats.Duration.Round(timeRounding))))
	return nil
}
