package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/duecycle/duecycle/internal/cli"
	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/duecycle/duecycle/internal/service"
	"github.com/spf13/cobra"
)

func forecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast [<id>]",
		Short: "Forecast obligation totals",
		Long: `Show, per obligation, the exact total due within a window alongside
the estimated monthly cost.

The two figures come from different paths on purpose: the window total
counts occurrences at the base amount and ignores daily overrides, while
the monthly estimate honors overrides recorded for the current month.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runForecast,
	}

	cmd.Flags().String("from", "", "window start (YYYY-MM-DD, default today)")
	cmd.Flags().String("to", "", "window end (YYYY-MM-DD, default one month after start)")

	return cmd
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")

	from, err := parseDateFlag(fromFlag, time.Now())
	if err != nil {
		return err
	}
	to, err := parseDateFlag(toFlag, from.AddDate(0, 1, 0))
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

	obligations, err := forecastTargets(cmd, args, store)
	if err != nil {
		return err
	}
	if len(obligations) == 0 {
		fmt.Println(cli.InfoStyle.Render("Nothing to forecast.")) //nolint:forbidigo // User-facing output
		return nil
	}

	fmt.Println(cli.FormatTitle("Forecast"))                    //nolint:forbidigo // User-facing output
	fmt.Println(cli.SubtitleStyle.Render(fmt.Sprintf("%s — %s", //nolint:forbidigo // User-facing output
		from.Format(model.DateLayout), to.Format(model.DateLayout))))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		cli.BoldStyle.Render("Name"),
		cli.BoldStyle.Render("Window Total"),
		cli.BoldStyle.Render("Monthly Est."),
		cli.BoldStyle.Render("Overrides")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	calculator := recurrence.NewCalculator()
	currentMonth := time.Now().Format(model.MonthLayout)
	var windowTotal, monthlyTotal float64
	for i := range obligations {
		o := &obligations[i]
		if o.IsLegacy() {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				o.Name, "—", "—", cli.StyleWarning("legacy rule, not forecast")); err != nil {
				return fmt.Errorf("failed to write forecast row: %w", err)
			}
			continue
		}

		window := calculator.AmountForPeriod(o, from, to)
		monthly := calculator.MonthlyAmount(o)
		windowTotal += window
		monthlyTotal += monthly

		// Only the monthly figure reflects current-month overrides.
		overrides := cli.SubtleStyle.Render("none")
		if o.Recurrence != nil && len(o.Recurrence.AdjustmentsFor(currentMonth)) > 0 {
			overrides = cli.StyleInfo("monthly est. only")
		}

		if _, err := fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\n",
			o.Name, window, monthly, overrides); err != nil {
			return fmt.Errorf("failed to write forecast row: %w", err)
		}
	}

	if len(obligations) > 1 {
		if _, err := fmt.Fprintf(w, "%s\t%.2f\t%.2f\t\n",
			cli.BoldStyle.Render("Total"), windowTotal, monthlyTotal); err != nil {
			return fmt.Errorf("failed to write total row: %w", err)
		}
	}

	return nil
}

func forecastTargets(cmd *cobra.Command, args []string, store service.Storage) ([]model.Obligation, error) {
	ctx := cmd.Context()

	if len(args) == 1 {
		id, err := parseObligationID(args[0])
		if err != nil {
			return nil, err
		}
		obligation, err := store.GetObligation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load obligation %d: %w", id, err)
		}
		return []model.Obligation{*obligation}, nil
	}

	obligations, err := store.ListActiveObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	return obligations, nil
}
