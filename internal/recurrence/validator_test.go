package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duecycle/duecycle/internal/model"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		draft          *model.RecurrenceDraft
		name           string
		wantCategories []ErrorCategory
	}{
		{
			name: "valid weekly draft",
			draft: &model.RecurrenceDraft{
				Pattern:   "weekly",
				Interval:  intPtr(1),
				StartDate: "2025-01-06",
				Config:    model.RecurrenceConfig{WeekDays: []int{1, 3}},
			},
		},
		{
			name: "valid monthly draft with end date",
			draft: &model.RecurrenceDraft{
				Pattern:   "monthly",
				Interval:  intPtr(2),
				StartDate: "2025-01-15",
				EndDate:   "2026-01-15",
				Config:    model.RecurrenceConfig{MonthDays: []int{15, 30}},
			},
		},
		{
			name:           "nil draft",
			draft:          nil,
			wantCategories: []ErrorCategory{CategoryPattern, CategoryStartDate, CategoryInterval},
		},
		{
			name: "missing pattern",
			draft: &model.RecurrenceDraft{
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
			},
			wantCategories: []ErrorCategory{CategoryPattern},
		},
		{
			name: "unknown pattern",
			draft: &model.RecurrenceDraft{
				Pattern:   "fortnightly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
			},
			wantCategories: []ErrorCategory{CategoryPattern},
		},
		{
			name: "unparseable start date",
			draft: &model.RecurrenceDraft{
				Pattern:   "daily",
				Interval:  intPtr(1),
				StartDate: "01/31/2025",
			},
			wantCategories: []ErrorCategory{CategoryStartDate},
		},
		{
			name: "unparseable end date",
			draft: &model.RecurrenceDraft{
				Pattern:   "daily",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				EndDate:   "soon",
			},
			wantCategories: []ErrorCategory{CategoryEndDate},
		},
		{
			name: "end date precedes start date",
			draft: &model.RecurrenceDraft{
				Pattern:   "daily",
				Interval:  intPtr(1),
				StartDate: "2025-06-01",
				EndDate:   "2025-01-01",
			},
			wantCategories: []ErrorCategory{CategoryDateRange},
		},
		{
			name: "missing interval",
			draft: &model.RecurrenceDraft{
				Pattern:   "daily",
				StartDate: "2025-01-01",
			},
			wantCategories: []ErrorCategory{CategoryInterval},
		},
		{
			name: "zero interval",
			draft: &model.RecurrenceDraft{
				Pattern:   "daily",
				Interval:  intPtr(0),
				StartDate: "2025-01-01",
			},
			wantCategories: []ErrorCategory{CategoryInterval},
		},
		{
			name: "weekday out of range",
			draft: &model.RecurrenceDraft{
				Pattern:   "weekly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				Config:    model.RecurrenceConfig{WeekDays: []int{2, 7}},
			},
			wantCategories: []ErrorCategory{CategoryConfig},
		},
		{
			name: "month day out of range",
			draft: &model.RecurrenceDraft{
				Pattern:   "monthly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				Config:    model.RecurrenceConfig{MonthDays: []int{0, 15, 32}},
			},
			wantCategories: []ErrorCategory{CategoryConfig, CategoryConfig},
		},
		{
			name: "yearly month out of range",
			draft: &model.RecurrenceDraft{
				Pattern:   "yearly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				Config:    model.RecurrenceConfig{Yearly: &model.YearlyConfig{Month: 13, Day: 1}},
			},
			wantCategories: []ErrorCategory{CategoryConfig},
		},
		{
			name: "yearly Feb 30 rejected",
			draft: &model.RecurrenceDraft{
				Pattern:   "yearly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				Config:    model.RecurrenceConfig{Yearly: &model.YearlyConfig{Month: 2, Day: 30}},
			},
			wantCategories: []ErrorCategory{CategoryConfig},
		},
		{
			name: "yearly Feb 29 accepted",
			draft: &model.RecurrenceDraft{
				Pattern:   "yearly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				Config:    model.RecurrenceConfig{Yearly: &model.YearlyConfig{Month: 2, Day: 29}},
			},
		},
		{
			name: "yearly Apr 31 rejected",
			draft: &model.RecurrenceDraft{
				Pattern:   "yearly",
				Interval:  intPtr(1),
				StartDate: "2025-01-01",
				Config:    model.RecurrenceConfig{Yearly: &model.YearlyConfig{Month: 4, Day: 31}},
			},
			wantCategories: []ErrorCategory{CategoryConfig},
		},
		{
			name: "multiple failures accumulate",
			draft: &model.RecurrenceDraft{
				Pattern:   "hourly",
				Interval:  intPtr(-2),
				StartDate: "never",
				EndDate:   "later",
			},
			wantCategories: []ErrorCategory{
				CategoryPattern, CategoryStartDate, CategoryEndDate, CategoryInterval,
			},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.draft)

			if len(tt.wantCategories) == 0 {
				assert.True(t, result.Valid(), "expected valid, got %v", result.Errors)
				return
			}

			require.Len(t, result.Errors, len(tt.wantCategories))
			got := make([]ErrorCategory, 0, len(result.Errors))
			for _, err := range result.Errors {
				got = append(got, err.Category)
			}
			assert.ElementsMatch(t, tt.wantCategories, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	now := date(2025, time.March, 12) // a Wednesday
	v := NewValidator()
	v.now = fixedClock(now)

	t.Run("nil draft yields nil", func(t *testing.T) {
		assert.Nil(t, v.Normalize(nil))
	})

	t.Run("empty draft gets full defaults", func(t *testing.T) {
		spec := v.Normalize(&model.RecurrenceDraft{})
		require.NotNil(t, spec)
		assert.Equal(t, model.PatternMonthly, spec.Pattern)
		assert.Equal(t, 1, spec.Interval)
		assert.True(t, spec.IsActive)
		assert.Equal(t, now, spec.StartDate)
		assert.Equal(t, []int{12}, spec.Config.MonthDays)
	})

	t.Run("weekly selector defaults to start weekday", func(t *testing.T) {
		spec := v.Normalize(&model.RecurrenceDraft{
			Pattern:   "weekly",
			StartDate: "2025-03-10", // Monday
		})
		require.NotNil(t, spec)
		assert.Equal(t, []int{1}, spec.Config.WeekDays)
	})

	t.Run("yearly selector defaults to start month and day", func(t *testing.T) {
		spec := v.Normalize(&model.RecurrenceDraft{
			Pattern:   "yearly",
			StartDate: "2025-07-04",
		})
		require.NotNil(t, spec)
		require.NotNil(t, spec.Config.Yearly)
		assert.Equal(t, 7, spec.Config.Yearly.Month)
		assert.Equal(t, 4, spec.Config.Yearly.Day)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		spec := v.Normalize(&model.RecurrenceDraft{
			Pattern:   "weekly",
			Interval:  intPtr(2),
			IsActive:  boolPtr(false),
			StartDate: "2025-01-06",
			EndDate:   "2025-12-31",
			Config:    model.RecurrenceConfig{WeekDays: []int{5, 1}},
		})
		require.NotNil(t, spec)
		assert.Equal(t, 2, spec.Interval)
		assert.False(t, spec.IsActive)
		require.NotNil(t, spec.EndDate)
		assert.Equal(t, date(2025, time.December, 31), *spec.EndDate)
		assert.Equal(t, []int{1, 5}, spec.Config.WeekDays, "selectors are sorted")
	})

	t.Run("draft is not mutated", func(t *testing.T) {
		draft := &model.RecurrenceDraft{
			Pattern:   "weekly",
			StartDate: "2025-03-10",
			Config:    model.RecurrenceConfig{WeekDays: []int{6, 0}},
		}
		_ = v.Normalize(draft)
		assert.Equal(t, []int{6, 0}, draft.Config.WeekDays)
		assert.Nil(t, draft.Interval)
	})

	t.Run("idempotent", func(t *testing.T) {
		spec := v.Normalize(&model.RecurrenceDraft{
			Pattern:   "monthly",
			Interval:  intPtr(3),
			StartDate: "2025-02-28",
		})
		require.NotNil(t, spec)
		again := v.normalizeSpec(spec.Clone())
		assert.Equal(t, spec, again)
	})
}

func TestConvertFromLegacy(t *testing.T) {
	base := date(2025, time.April, 17) // a Thursday
	v := NewValidator()
	v.now = fixedClock(base)

	t.Run("nil config yields nil", func(t *testing.T) {
		assert.Nil(t, v.ConvertFromLegacy(nil, base))
	})

	t.Run("frequency mapping", func(t *testing.T) {
		tests := []struct {
			frequency string
			want      model.Pattern
		}{
			{"daily", model.PatternDaily},
			{"weekly", model.PatternWeekly},
			{"biweekly", model.PatternBiweekly},
			{"monthly", model.PatternMonthly},
			{"yearly", model.PatternYearly},
			{"quarterly", model.PatternMonthly},
			{"biannual", model.PatternMonthly},
			{"lunar", model.PatternMonthly}, // unknown falls back silently
		}
		for _, tt := range tests {
			spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
				Frequency: tt.frequency,
				StartDate: "2025-01-01",
			}, base)
			require.NotNil(t, spec, tt.frequency)
			assert.Equal(t, tt.want, spec.Pattern, tt.frequency)
		}
	})

	t.Run("quarterly mapping does not multiply the interval", func(t *testing.T) {
		spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
			Frequency: "quarterly",
			Interval:  1,
			StartDate: "2025-01-01",
		}, base)
		require.NotNil(t, spec)
		assert.Equal(t, 1, spec.Interval, "interval adjustment is the caller's job")
	})

	t.Run("dayOfWeek wins over specificDates", func(t *testing.T) {
		spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
			Frequency:     "weekly",
			StartDate:     "2025-01-06",
			DayOfWeek:     intPtr(5),
			SpecificDates: []int{1, 2},
		}, base)
		require.NotNil(t, spec)
		assert.Equal(t, []int{5}, spec.Config.WeekDays)
	})

	t.Run("specificDates used when single-value field absent", func(t *testing.T) {
		spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
			Frequency:     "monthly",
			StartDate:     "2025-01-06",
			SpecificDates: []int{10, 25},
		}, base)
		require.NotNil(t, spec)
		assert.Equal(t, []int{10, 25}, spec.Config.MonthDays)
	})

	t.Run("selector derives from start date when nothing is present", func(t *testing.T) {
		spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
			Frequency: "monthly",
			StartDate: "2025-01-06",
		}, base)
		require.NotNil(t, spec)
		assert.Equal(t, []int{6}, spec.Config.MonthDays)
	})

	t.Run("base date backfills a missing start date", func(t *testing.T) {
		spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{Frequency: "daily"}, base)
		require.NotNil(t, spec)
		assert.Equal(t, base, spec.StartDate)
	})

	t.Run("adjustments carried verbatim", func(t *testing.T) {
		spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
			Frequency:        "monthly",
			StartDate:        "2025-01-01",
			DailyAdjustments: map[string]model.Adjustment{"15": {Amount: -500}},
			AdjustmentsMonth: "2025-04",
		}, base)
		require.NotNil(t, spec)
		assert.Equal(t, "2025-04", spec.AdjustmentsMonth)
		assert.Equal(t, map[string]model.Adjustment{"15": {Amount: -500}}, spec.DailyAdjustments)
	})

	t.Run("source config is not mutated", func(t *testing.T) {
		legacy := &model.LegacyRecurringConfig{
			Frequency:     "weekly",
			StartDate:     "2025-01-06",
			SpecificDates: []int{2, 4},
		}
		spec := v.ConvertFromLegacy(legacy, base)
		require.NotNil(t, spec)
		spec.Config.WeekDays[0] = 99
		assert.Equal(t, []int{2, 4}, legacy.SpecificDates)
	})

	t.Run("recognized frequencies convert to valid rules", func(t *testing.T) {
		for frequency := range LegacyFrequencies {
			spec := v.ConvertFromLegacy(&model.LegacyRecurringConfig{
				Frequency: frequency,
				Interval:  1,
				StartDate: "2025-01-06",
				EndDate:   "2027-01-06",
			}, base)
			require.NotNil(t, spec, frequency)

			result := v.Validate(draftFromSpec(spec))
			assert.True(t, result.Valid(), "%s: %v", frequency, result.Errors)
		}
	})
}

// draftFromSpec rebuilds the wire shape of a normalized spec so it can be
// run back through validation.
func draftFromSpec(spec *model.RecurrenceSpec) *model.RecurrenceDraft {
	draft := &model.RecurrenceDraft{
		Pattern:          string(spec.Pattern),
		Interval:         intPtr(spec.Interval),
		IsActive:         boolPtr(spec.IsActive),
		StartDate:        spec.StartDate.Format(model.DateLayout),
		Config:           spec.Config,
		DailyAdjustments: spec.DailyAdjustments,
		AdjustmentsMonth: spec.AdjustmentsMonth,
	}
	if spec.EndDate != nil {
		draft.EndDate = spec.EndDate.Format(model.DateLayout)
	}
	if spec.LastProcessed != nil {
		draft.LastProcessed = spec.LastProcessed.Format(model.DateLayout)
	}
	return draft
}
