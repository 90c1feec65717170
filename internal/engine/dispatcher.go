// Package engine orchestrates the recurring-obligation dispatch flow:
// it walks active obligations, materializes due occurrences into ledger
// entries, and runs the one-time legacy rule migration pass.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/duecycle/duecycle/internal/common"
	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/duecycle/duecycle/internal/service"
)

// Dispatcher materializes occurrences and advances rule state. It holds
// the single-active-instance responsibility the rule engine itself
// deliberately avoids: the engine computes dates, the dispatcher owns
// at-most-once persistence.
type Dispatcher struct {
	storage    service.Storage
	calculator *recurrence.Calculator
	validator  *recurrence.Validator
	retryOpts  service.RetryOptions
	now        func() time.Time
}

// New creates a dispatcher.
func New(storage service.Storage, calculator *recurrence.Calculator, validator *recurrence.Validator) *Dispatcher {
	return &Dispatcher{
		storage:    storage,
		calculator: calculator,
		validator:  validator,
		retryOpts:  service.RetryOptions{MaxAttempts: 3},
		now:        time.Now,
	}
}

// Run performs one dispatch pass: every active obligation is rolled
// forward to today, writing one ledger entry per due occurrence. A bad
// record is logged and skipped; it never halts the batch.
func (d *Dispatcher) Run(ctx context.Context) (*service.DispatchStats, error) {
	started := d.now()
	today := dateOf(d.now())

	obligations, err := d.storage.ListActiveObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active obligations: %w", err)
	}

	stats := &service.DispatchStats{Obligations: len(obligations)}
	for i := range obligations {
		obligation := &obligations[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		materialized, err := d.rollForward(ctx, obligation, today)
		stats.Materialized += materialized
		if err != nil {
			stats.Skipped++
			common.LogError(err, "Skipping obligation", common.Fields{
				"obligation_id": obligation.ID,
				"name":          obligation.Name,
			})
			continue
		}
		if obligation.Recurrence != nil && !obligation.Recurrence.Pattern.Known() {
			// Data-integrity signal, not business as usual.
			stats.Anomalies++
			common.LogError(common.ErrUnknownPattern, "Obligation has an unknown pattern", common.Fields{
				"obligation_id": obligation.ID,
				"pattern":       string(obligation.Recurrence.Pattern),
			})
		}
	}

	stats.Duration = time.Since(started)
	common.LogInfo("Dispatch pass complete", common.Fields{
		"obligations":  stats.Obligations,
		"materialized": stats.Materialized,
		"skipped":      stats.Skipped,
		"anomalies":    stats.Anomalies,
		"duration":     stats.Duration,
	})
	return stats, nil
}

// rollForward materializes every due occurrence for one obligation, in
// order, advancing the rule's last processed date as it goes.
func (d *Dispatcher) rollForward(ctx context.Context, obligation *model.Obligation, today time.Time) (int, error) {
	spec := obligation.Recurrence
	if spec == nil {
		return 0, common.ErrNotMigrated
	}

	materialized := 0

	// A rule that has never been processed may be due on its own start
	// date; forward stepping alone would skip past it.
	if spec.LastProcessed == nil && !spec.StartDate.After(today) &&
		d.calculator.IsOccurrenceDate(obligation, spec.StartDate) {
		if err := d.materialize(ctx, obligation, spec.StartDate); err != nil {
			return materialized, err
		}
		materialized++
	}

	var previous *time.Time
	for {
		next := d.calculator.NextOccurrence(obligation, today)
		if next == nil || next.After(today) {
			break
		}
		if previous != nil && !next.After(*previous) {
			// Degenerate rule; stop rather than spin.
			break
		}
		if err := d.materialize(ctx, obligation, *next); err != nil {
			return materialized, err
		}
		materialized++
		previous = next
	}
	return materialized, nil
}

// materialize writes the ledger entry and advances the last processed
// date atomically, then mirrors the advance into the in-memory rule so
// the stepping loop moves on.
func (d *Dispatcher) materialize(ctx context.Context, obligation *model.Obligation, dueDate time.Time) error {
	operation := func() error {
		tx, err := d.storage.BeginTx(ctx)
		if err != nil {
			return err
		}

		entry := &model.LedgerEntry{
			ObligationID: obligation.ID,
			DueDate:      dueDate,
			Amount:       obligation.Amount,
		}
		if err := tx.SaveLedgerEntry(ctx, entry); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.AdvanceLastProcessed(ctx, obligation.ID, dueDate); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	if err := common.WithRetry(ctx, operation, d.retryOpts); err != nil {
		return fmt.Errorf("failed to materialize occurrence %s: %w",
			dueDate.Format(model.DateLayout), err)
	}

	due := dueDate
	obligation.Recurrence.LastProcessed = &due

	common.LogDebug("Materialized occurrence", common.Fields{
		"obligation_id": obligation.ID,
		"due_date":      dueDate.Format(model.DateLayout),
		"amount":        obligation.Amount,
	})
	return nil
}

// MigrateLegacy converts every obligation still carrying a legacy rule
// into the current shape and records the conversion. The progress
// callback, when non-nil, is invoked after each record.
//
// The conversion itself is interval-neutral for quarterly and biannual
// sources; the multiplication to every 3 or 6 months happens here, on
// the caller side, so migrated rules bill at the cadence the legacy
// frequency meant.
func (d *Dispatcher) MigrateLegacy(ctx context.Context, progress func(done, total int)) (*service.MigrationStats, error) {
	started := d.now()

	legacy, err := d.storage.ListLegacyObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy obligations: %w", err)
	}

	stats := &service.MigrationStats{}
	for i := range legacy {
		obligation := &legacy[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		spec := d.validator.ConvertFromLegacy(obligation.Legacy, obligation.Date)
		if spec == nil {
			stats.Invalid++
			common.LogError(common.ErrInvalidConfig, "Legacy rule could not be converted", common.Fields{
				"obligation_id": obligation.ID,
			})
			continue
		}
		switch obligation.Legacy.Frequency {
		case "quarterly":
			spec.Interval *= 3
		case "biannual":
			spec.Interval *= 6
		}

		operation := func() error {
			return d.storage.MarkMigrated(ctx, obligation.ID, spec)
		}
		if err := common.WithRetry(ctx, operation, d.retryOpts); err != nil {
			stats.Invalid++
			common.LogError(err, "Failed to persist migrated rule", common.Fields{
				"obligation_id": obligation.ID,
			})
			continue
		}
		stats.Converted++

		common.LogInfo("Migrated legacy rule", common.Fields{
			"obligation_id": obligation.ID,
			"frequency":     obligation.Legacy.Frequency,
			"pattern":       string(spec.Pattern),
			"interval":      spec.Interval,
		})

		if progress != nil {
			progress(i+1, len(legacy))
		}
	}

	stats.Duration = time.Since(started)
	return stats, nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
