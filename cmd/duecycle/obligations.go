package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/duecycle/duecycle/internal/cli"
	"github.com/duecycle/duecycle/internal/common"
	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/spf13/cobra"
)

func obligationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obligations",
		Short: "Manage recurring obligations",
	}

	cmd.AddCommand(obligationsListCmd())
	cmd.AddCommand(obligationsAddCmd())
	cmd.AddCommand(obligationsAdjustCmd())

	return cmd
}

func obligationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all obligations",
		Long: `Display every obligation with its recurrence rule and the next date
it falls due. Obligations still carrying an unconverted legacy rule are
flagged; run 'duecycle migrate legacy' to convert them.`,
		RunE: runObligationsList,
	}
}

func runObligationsList(cmd *cobra.Command, _ []string) error {
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

	obligations, err := store.ListObligations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list obligations: %w", err)
	}

	if len(obligations) == 0 {
		fmt.Println(cli.InfoStyle.Render("No obligations found. Use 'duecycle obligations add' to create one.")) //nolint:forbidigo // User-facing output
		return nil
	}

	fmt.Println(cli.FormatTitle("Obligations")) //nolint:forbidigo // User-facing output
	fmt.Println()                               //nolint:forbidigo // User-facing output

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		cli.BoldStyle.Render("ID"),
		cli.BoldStyle.Render("Name"),
		cli.BoldStyle.Render("Amount"),
		cli.BoldStyle.Render("Rule"),
		cli.BoldStyle.Render("Next Due"),
		cli.BoldStyle.Render("Active")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	calculator := recurrence.NewCalculator()
	today := time.Now()
	for i := range obligations {
		o := &obligations[i]
		if _, err := fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\t%s\n",
			o.ID,
			o.Name,
			o.Amount,
			formatRule(o),
			formatNextDue(calculator, o, today),
			formatActive(o)); err != nil {
			return fmt.Errorf("failed to write obligation row: %w", err)
		}
	}

	return nil
}

func formatRule(o *model.Obligation) string {
	if o.IsLegacy() {
		return cli.StyleWarning("legacy: " + o.Legacy.Frequency)
	}
	if o.Recurrence == nil {
		return cli.SubtleStyle.Render("none")
	}
	if o.Recurrence.Interval > 1 {
		return fmt.Sprintf("%s ×%d", o.Recurrence.Pattern, o.Recurrence.Interval)
	}
	return string(o.Recurrence.Pattern)
}

func formatNextDue(calculator *recurrence.Calculator, o *model.Obligation, today time.Time) string {
	next := calculator.NextOccurrence(o, today)
	if next == nil {
		return cli.SubtleStyle.Render("—")
	}
	return next.Format(model.DateLayout)
}

func formatActive(o *model.Obligation) string {
	if o.Recurrence != nil && o.Recurrence.IsActive {
		return cli.StyleSuccess("yes")
	}
	return cli.SubtleStyle.Render("no")
}

func obligationsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new obligation",
		Long: `Create an obligation with a recurrence rule. The rule is validated
before saving; every validation problem is reported, not just the first.

Omitted rule fields fall back to their defaults: monthly pattern,
interval 1, active, starting today.`,
		RunE: runObligationsAdd,
	}

	cmd.Flags().String("name", "", "obligation name (required)")
	cmd.Flags().Float64("amount", 0, "base periodic amount (required)")
	cmd.Flags().String("pattern", "", "recurrence pattern (daily, weekly, biweekly, monthly, yearly)")
	cmd.Flags().Int("interval", 0, "repeat every N periods")
	cmd.Flags().String("start", "", "start date (YYYY-MM-DD, default today)")
	cmd.Flags().String("end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().IntSlice("weekdays", nil, "weekly pattern days (0=Sunday .. 6=Saturday)")
	cmd.Flags().IntSlice("monthdays", nil, "monthly pattern days (1..31)")
	cmd.Flags().Int("year-month", 0, "yearly pattern month (1..12)")
	cmd.Flags().Int("year-day", 0, "yearly pattern day (1..31)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runObligationsAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	name, _ := cmd.Flags().GetString("name")
	amount, _ := cmd.Flags().GetFloat64("amount")
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}

	draft := draftFromFlags(cmd)

	validator := recurrence.NewValidator()
	result := validator.Validate(draft)
	if !result.Valid() {
		fmt.Println(cli.FormatError("Invalid recurrence rule:")) //nolint:forbidigo // User-facing output
		for _, verr := range result.Errors {
			fmt.Println("  " + cli.StyleError(fmt.Sprintf("[%s] %s", verr.Category, verr.Message))) //nolint:forbidigo // User-facing output
		}
		return fmt.Errorf("recurrence rule failed validation with %d error(s)", len(result.Errors))
	}

	spec := validator.Normalize(draft)

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	obligation := &model.Obligation{
		Name:       name,
		Amount:     amount,
		Date:       spec.StartDate,
		Recurrence: spec,
	}
	if err := store.SaveObligation(ctx, obligation); err != nil {
		return fmt.Errorf("failed to save obligation: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created obligation %d: %s (%s, %.2f)", //nolint:forbidigo // User-facing output
		obligation.ID, obligation.Name, formatRule(obligation), obligation.Amount)))
	return nil
}

func draftFromFlags(cmd *cobra.Command) *model.RecurrenceDraft {
	draft := &model.RecurrenceDraft{}

	if pattern, _ := cmd.Flags().GetString("pattern"); pattern != "" {
		draft.Pattern = pattern
	}
	if cmd.Flags().Changed("interval") {
		interval, _ := cmd.Flags().GetInt("interval")
		draft.Interval = &interval
	}
	if start, _ := cmd.Flags().GetString("start"); start != "" {
		draft.StartDate = start
	}
	if end, _ := cmd.Flags().GetString("end"); end != "" {
		draft.EndDate = end
	}
	if weekDays, _ := cmd.Flags().GetIntSlice("weekdays"); len(weekDays) > 0 {
		draft.Config.WeekDays = weekDays
	}
	if monthDays, _ := cmd.Flags().GetIntSlice("monthdays"); len(monthDays) > 0 {
		draft.Config.MonthDays = monthDays
	}
	if cmd.Flags().Changed("year-month") || cmd.Flags().Changed("year-day") {
		month, _ := cmd.Flags().GetInt("year-month")
		day, _ := cmd.Flags().GetInt("year-day")
		draft.Config.Yearly = &model.YearlyConfig{Month: month, Day: day}
	}

	return draft
}

func obligationsAdjustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust <id>",
		Short: "Set a daily amount override for one month",
		Long: `Record a per-day delta on the obligation's amortized daily amount for
a single month. Only one month of overrides is kept: adjusting a new
month replaces whatever was recorded for the previous one.

Deltas apply to the daily base (amount divided by cycle length); the
resulting daily figure never goes below zero.`,
		Args: cobra.ExactArgs(1),
		RunE: runObligationsAdjust,
	}

	cmd.Flags().String("month", "", "month the override applies to (YYYY-MM, required)")
	cmd.Flags().Int("day", 0, "day of month (1..31, required)")
	cmd.Flags().Float64("amount", 0, "delta applied to the daily base amount")
	_ = cmd.MarkFlagRequired("month")
	_ = cmd.MarkFlagRequired("day")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runObligationsAdjust(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := parseObligationID(args[0])
	if err != nil {
		return err
	}

	month, _ := cmd.Flags().GetString("month")
	if _, err := time.Parse(model.MonthLayout, month); err != nil {
		return common.NewUserError(fmt.Sprintf("invalid month %q: expected YYYY-MM", month), err)
	}
	day, _ := cmd.Flags().GetInt("day")
	if day < 1 || day > 31 {
		return common.NewUserError(fmt.Sprintf("invalid day %d: must be between 1 and 31", day), nil)
	}
	delta, _ := cmd.Flags().GetFloat64("amount")

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
	if obligation.Recurrence == nil {
		return common.NewUserError(
			fmt.Sprintf("obligation %d has no recurrence rule; run 'duecycle migrate legacy' first", id),
			common.ErrNotMigrated)
	}

	// Carry existing overrides forward only when they already belong to
	// the same month; any other month's are replaced wholesale.
	adjustments := map[string]model.Adjustment{}
	for k, v := range obligation.Recurrence.AdjustmentsFor(month) {
		adjustments[k] = v
	}
	adjustments[fmt.Sprintf("%02d", day)] = model.Adjustment{Amount: delta}

	if err := store.SetDailyAdjustments(ctx, id, month, adjustments); err != nil {
		return fmt.Errorf("failed to save adjustments: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Recorded %+.2f/day override on %s-%02d for %q", //nolint:forbidigo // User-facing output
		delta, month, day, obligation.Name)))
	return nil
}
