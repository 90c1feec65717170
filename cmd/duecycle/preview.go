package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/duecycle/duecycle/internal/cli"
	"github.com/duecycle/duecycle/internal/common"
	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/spf13/cobra"
)

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Preview upcoming occurrences for an obligation",
		Long: `Enumerate every date an obligation falls due within a window, without
touching the ledger. Defaults to the next three months.`,
		Args: cobra.ExactArgs(1),
		RunE: runPreview,
	}

	cmd.Flags().String("from", "", "window start (YYYY-MM-DD, default today)")
	cmd.Flags().String("to", "", "window end (YYYY-MM-DD, default three months after start)")

	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := parseObligationID(args[0])
	if err != nil {
		return err
	}

	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")

	from, err := parseDateFlag(fromFlag, time.Now())
	if err != nil {
		return err
	}
	to, err := parseDateFlag(toFlag, from.AddDate(0, 3, 0))
	if err != nil {
		return err
	}
	if to.Before(from) {
		return fmt.Errorf("window end %s is before start %s", to.Format(model.DateLayout), from.Format(model.DateLayout))
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

	obligation, err := store.GetObligation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load obligation %d: %w", id, err)
	}
	if obligation.IsLegacy() {
		return common.NewUserError(
			fmt.Sprintf("obligation %d still carries a legacy rule; run 'duecycle migrate legacy' first", id),
			common.ErrNotMigrated)
	}

	calculator := recurrence.NewCalculator()
	occurrences := calculator.OccurrencesInPeriod(obligation, from, to)

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Occurrences for %q", obligation.Name))) //nolint:forbidigo // User-facing output
	fmt.Println(cli.SubtitleStyle.Render(fmt.Sprintf("%s — %s",                      //nolint:forbidigo // User-facing output
		from.Format(model.DateLayout), to.Format(model.DateLayout))))

	if len(occurrences) == 0 {
		fmt.Println(cli.InfoStyle.Render("No occurrences in this window.")) //nolint:forbidigo // User-facing output
		return nil
	}

	for _, occurrence := range occurrences {
		fmt.Printf("  %s %s  %.2f\n", //nolint:forbidigo // User-facing output
			cli.CalendarIcon, occurrence.Format(model.DateLayout), obligation.Amount)
	}
	fmt.Println() //nolint:forbidigo // User-facing output
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d occurrence(s), %.2f total", //nolint:forbidigo // User-facing output
		len(occurrences), float64(len(occurrences))*obligation.Amount)))

	return nil
}
