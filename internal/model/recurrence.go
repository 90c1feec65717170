// Package model defines the core data structures for the duecycle application.
package model

import (
	"time"
)

// Pattern identifies the recurrence family of an obligation.
type Pattern string

// Recurrence patterns.
const (
	PatternDaily    Pattern = "daily"
	PatternWeekly   Pattern = "weekly"
	PatternBiweekly Pattern = "biweekly"
	PatternMonthly  Pattern = "monthly"
	PatternYearly   Pattern = "yearly"
)

// KnownPatterns lists every pattern the engine understands, in a stable order.
var KnownPatterns = []Pattern{
	PatternDaily,
	PatternWeekly,
	PatternBiweekly,
	PatternMonthly,
	PatternYearly,
}

// Known reports whether p is one of the five supported patterns.
func (p Pattern) Known() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternBiweekly, PatternMonthly, PatternYearly:
		return true
	}
	return false
}

// YearlyConfig selects the month/day an annual obligation falls on.
type YearlyConfig struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// RecurrenceConfig carries the pattern-specific date selector.
// Only the field matching the rule's pattern is meaningful; daily and
// biweekly patterns use none of them.
type RecurrenceConfig struct {
	WeekDays  []int         `json:"week_days,omitempty"`  // 0=Sunday .. 6=Saturday
	MonthDays []int         `json:"month_days,omitempty"` // 1..31
	Yearly    *YearlyConfig `json:"yearly,omitempty"`
}

// Adjustment is a per-day delta applied to the amortized daily amount.
type Adjustment struct {
	Amount float64 `json:"amount"`
}

// RecurrenceSpec is the validated, normalized recurrence rule embedded in
// an obligation. Producers are Validator.Normalize and
// Validator.ConvertFromLegacy; consumers must treat it as immutable.
type RecurrenceSpec struct {
	StartDate        time.Time             `json:"start_date"`
	EndDate          *time.Time            `json:"end_date,omitempty"`
	LastProcessed    *time.Time            `json:"last_processed,omitempty"`
	DailyAdjustments map[string]Adjustment `json:"daily_adjustments,omitempty"` // keys "01".."31"
	AdjustmentsMonth string                `json:"adjustments_month,omitempty"` // "YYYY-MM"
	Pattern          Pattern               `json:"pattern"`
	Config           RecurrenceConfig      `json:"config"`
	Interval         int                   `json:"interval"`
	IsActive         bool                  `json:"is_active"`
}

// Clone returns a deep copy so callers can derive variants without
// mutating a shared spec.
func (s *RecurrenceSpec) Clone() *RecurrenceSpec {
	if s == nil {
		return nil
	}
	out := *s
	if s.EndDate != nil {
		d := *s.EndDate
		out.EndDate = &d
	}
	if s.LastProcessed != nil {
		d := *s.LastProcessed
		out.LastProcessed = &d
	}
	if s.Config.WeekDays != nil {
		out.Config.WeekDays = append([]int(nil), s.Config.WeekDays...)
	}
	if s.Config.MonthDays != nil {
		out.Config.MonthDays = append([]int(nil), s.Config.MonthDays...)
	}
	if s.Config.Yearly != nil {
		y := *s.Config.Yearly
		out.Config.Yearly = &y
	}
	if s.DailyAdjustments != nil {
		out.DailyAdjustments = make(map[string]Adjustment, len(s.DailyAdjustments))
		for k, v := range s.DailyAdjustments {
			out.DailyAdjustments[k] = v
		}
	}
	return &out
}

// AdjustmentsFor returns the daily adjustments if they belong to the given
// month ("YYYY-MM"). Adjustments recorded for any other month are treated
// as absent.
func (s *RecurrenceSpec) AdjustmentsFor(month string) map[string]Adjustment {
	if s == nil || s.AdjustmentsMonth != month || len(s.DailyAdjustments) == 0 {
		return nil
	}
	return s.DailyAdjustments
}

// RecurrenceDraft is the unvalidated wire shape of a recurrence rule, as
// received from the API or CLI before it passes through the validator.
// Dates are "2006-01-02" strings; pointer fields distinguish "absent"
// from "present but zero".
type RecurrenceDraft struct {
	Interval         *int                  `json:"interval,omitempty"`
	IsActive         *bool                 `json:"is_active,omitempty"`
	DailyAdjustments map[string]Adjustment `json:"daily_adjustments,omitempty"`
	Pattern          string                `json:"pattern,omitempty"`
	StartDate        string                `json:"start_date,omitempty"`
	EndDate          string                `json:"end_date,omitempty"`
	LastProcessed    string                `json:"last_processed,omitempty"`
	AdjustmentsMonth string                `json:"adjustments_month,omitempty"`
	Config           RecurrenceConfig      `json:"config"`
}

// LegacyRecurringConfig is the pre-migration rule shape. It is read-only
// input to Validator.ConvertFromLegacy; the engine never writes it.
// "migrated" bookkeeping belongs to the persistence layer.
type LegacyRecurringConfig struct {
	Interval         int                   `json:"interval,omitempty"`
	DayOfWeek        *int                  `json:"day_of_week,omitempty"`
	DayOfMonth       *int                  `json:"day_of_month,omitempty"`
	IsActive         *bool                 `json:"is_active,omitempty"`
	SpecificDates    []int                 `json:"specific_dates,omitempty"`
	DailyAdjustments map[string]Adjustment `json:"daily_adjustments,omitempty"`
	Frequency        string                `json:"frequency,omitempty"`
	StartDate        string                `json:"start_date,omitempty"`
	EndDate          string                `json:"end_date,omitempty"`
	LastProcessed    string                `json:"last_processed,omitempty"`
	AdjustmentsMonth string                `json:"adjustments_month,omitempty"`
}

// DateLayout is the calendar-date wire format used by drafts and legacy
// configs.
const DateLayout = "2006-01-02"

// MonthLayout is the wire format for AdjustmentsMonth.
const MonthLayout = "2006-01"
