package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/duecycle/duecycle/internal/storage"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func setupDispatcher(t *testing.T, today time.Time) (*Dispatcher, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	d := New(store, recurrence.NewCalculator(), recurrence.NewValidator())
	d.now = func() time.Time { return today }
	return d, store
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("materializes every due occurrence", func(t *testing.T) {
		today := date(2025, time.March, 20)
		d, store := setupDispatcher(t, today)

		obligation := &model.Obligation{
			Name:   "Rent",
			Amount: 1500,
			Date:   date(2025, time.January, 15),
			Recurrence: &model.RecurrenceSpec{
				Pattern:   model.PatternMonthly,
				Interval:  1,
				StartDate: date(2025, time.January, 15),
				IsActive:  true,
				Config:    model.RecurrenceConfig{MonthDays: []int{15}},
			},
		}
		require.NoError(t, store.SaveObligation(ctx, obligation))

		stats, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Obligations)
		assert.Equal(t, 3, stats.Materialized, "Jan 15, Feb 15, Mar 15 are all due")
		assert.Zero(t, stats.Skipped)
		assert.Zero(t, stats.Anomalies)

		entries, err := store.GetLedgerEntriesByObligation(ctx, obligation.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, date(2025, time.January, 15), entries[0].DueDate)
		assert.Equal(t, date(2025, time.March, 15), entries[2].DueDate)

		updated, err := store.GetObligation(ctx, obligation.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.Recurrence.LastProcessed)
		assert.Equal(t, date(2025, time.March, 15), *updated.Recurrence.LastProcessed)
	})

	t.Run("second pass materializes nothing", func(t *testing.T) {
		today := date(2025, time.March, 20)
		d, store := setupDispatcher(t, today)

		obligation := &model.Obligation{
			Name:   "Rent",
			Amount: 1500,
			Date:   date(2025, time.January, 15),
			Recurrence: &model.RecurrenceSpec{
				Pattern:   model.PatternMonthly,
				Interval:  1,
				StartDate: date(2025, time.January, 15),
				IsActive:  true,
				Config:    model.RecurrenceConfig{MonthDays: []int{15}},
			},
		}
		require.NoError(t, store.SaveObligation(ctx, obligation))

		_, err := d.Run(ctx)
		require.NoError(t, err)

		stats, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Materialized, "everything up to today is already materialized")

		entries, err := store.GetLedgerEntriesByObligation(ctx, obligation.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("future rules are untouched", func(t *testing.T) {
		today := date(2025, time.March, 20)
		d, store := setupDispatcher(t, today)

		obligation := &model.Obligation{
			Name:   "Starts in June",
			Amount: 200,
			Date:   date(2025, time.June, 1),
			Recurrence: &model.RecurrenceSpec{
				Pattern:   model.PatternDaily,
				Interval:  1,
				StartDate: date(2025, time.June, 1),
				IsActive:  true,
			},
		}
		require.NoError(t, store.SaveObligation(ctx, obligation))

		stats, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Materialized)
	})

	t.Run("unknown pattern is an anomaly, not a failure", func(t *testing.T) {
		today := date(2025, time.March, 20)
		d, store := setupDispatcher(t, today)

		obligation := &model.Obligation{
			Name:   "Corrupt",
			Amount: 10,
			Date:   date(2025, time.January, 1),
			Recurrence: &model.RecurrenceSpec{
				Pattern:   model.Pattern("hourly"),
				Interval:  1,
				StartDate: date(2025, time.January, 1),
				IsActive:  true,
			},
		}
		require.NoError(t, store.SaveObligation(ctx, obligation))

		stats, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Anomalies)
		assert.Zero(t, stats.Materialized)
	})

	t.Run("rule end date caps materialization", func(t *testing.T) {
		today := date(2025, time.March, 20)
		d, store := setupDispatcher(t, today)

		end := date(2025, time.February, 1)
		obligation := &model.Obligation{
			Name:   "Short lived",
			Amount: 50,
			Date:   date(2025, time.January, 1),
			Recurrence: &model.RecurrenceSpec{
				Pattern:   model.PatternMonthly,
				Interval:  1,
				StartDate: date(2025, time.January, 1),
				EndDate:   &end,
				IsActive:  true,
				Config:    model.RecurrenceConfig{MonthDays: []int{1}},
			},
		}
		require.NoError(t, store.SaveObligation(ctx, obligation))

		stats, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Materialized, "Jan 1 and Feb 1 only")
	})
}

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()
	today := date(2025, time.March, 20)

	t.Run("converts legacy rules with interval fix-up", func(t *testing.T) {
		d, store := setupDispatcher(t, today)

		quarterly := &model.Obligation{
			Name:   "Quarterly fee",
			Amount: 300,
			Date:   date(2024, time.January, 10),
			Legacy: &model.LegacyRecurringConfig{
				Frequency: "quarterly",
				Interval:  1,
				StartDate: "2024-01-10",
			},
		}
		require.NoError(t, store.SaveObligation(ctx, quarterly))

		weekly := &model.Obligation{
			Name:   "Weekly dues",
			Amount: 20,
			Date:   date(2024, time.January, 8),
			Legacy: &model.LegacyRecurringConfig{
				Frequency: "weekly",
				Interval:  1,
				StartDate: "2024-01-08",
				DayOfWeek: func() *int { v := 1; return &v }(),
			},
		}
		require.NoError(t, store.SaveObligation(ctx, weekly))

		var calls int
		stats, err := d.MigrateLegacy(ctx, func(done, total int) {
			calls++
			assert.Equal(t, 2, total)
		})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Converted)
		assert.Zero(t, stats.Invalid)
		assert.Equal(t, 2, calls)

		migrated, err := store.GetObligation(ctx, quarterly.ID)
		require.NoError(t, err)
		require.NotNil(t, migrated.Recurrence)
		assert.Equal(t, model.PatternMonthly, migrated.Recurrence.Pattern)
		assert.Equal(t, 3, migrated.Recurrence.Interval, "quarterly bills every 3 months")
		assert.NotNil(t, migrated.MigratedAt)

		migratedWeekly, err := store.GetObligation(ctx, weekly.ID)
		require.NoError(t, err)
		require.NotNil(t, migratedWeekly.Recurrence)
		assert.Equal(t, []int{1}, migratedWeekly.Recurrence.Config.WeekDays)
	})

	t.Run("second pass finds nothing to convert", func(t *testing.T) {
		d, store := setupDispatcher(t, today)

		obligation := &model.Obligation{
			Name:   "Biannual dues",
			Amount: 600,
			Date:   date(2024, time.February, 1),
			Legacy: &model.LegacyRecurringConfig{
				Frequency: "biannual",
				Interval:  1,
				StartDate: "2024-02-01",
			},
		}
		require.NoError(t, store.SaveObligation(ctx, obligation))

		stats, err := d.MigrateLegacy(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Converted)

		migrated, err := store.GetObligation(ctx, obligation.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, migrated.Recurrence.Interval)

		stats, err = d.MigrateLegacy(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, stats.Converted)
	})
}
