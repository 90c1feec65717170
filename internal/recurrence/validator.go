// Package recurrence implements the recurring-obligation rule engine:
// validation and normalization of recurrence rules, legacy rule
// conversion, occurrence date arithmetic, and monetary aggregation.
//
// The package is pure computation over plain data. It performs no I/O
// and owns no mutable shared state; the only ambient input is the system
// clock, which is injectable for deterministic tests.
package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/duecycle/duecycle/internal/model"
)

// ErrorCategory groups validation failures so callers can assert on the
// kind of problem without depending on message wording.
type ErrorCategory string

// Validation error categories.
const (
	CategoryPattern   ErrorCategory = "pattern"
	CategoryStartDate ErrorCategory = "start_date"
	CategoryEndDate   ErrorCategory = "end_date"
	CategoryDateRange ErrorCategory = "date_range"
	CategoryInterval  ErrorCategory = "interval"
	CategoryConfig    ErrorCategory = "config"
)

// ValidationError is a single validation failure.
type ValidationError struct {
	Category ErrorCategory
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Result collects every validation failure for a draft. Validation never
// short-circuits, so a caller can surface all problems at once.
type Result struct {
	Errors []ValidationError
}

// Valid reports whether the draft passed every check.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) add(category ErrorCategory, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Validator validates, normalizes, and migrates recurrence rules.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a validator using the system clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate checks a candidate rule and accumulates every failure. A nil
// draft fails the pattern and start date checks like an empty one would.
func (v *Validator) Validate(draft *model.RecurrenceDraft) Result {
	var result Result
	if draft == nil {
		draft = &model.RecurrenceDraft{}
	}

	if draft.Pattern == "" {
		result.add(CategoryPattern, "pattern is required")
	} else if !model.Pattern(draft.Pattern).Known() {
		result.add(CategoryPattern, "unknown pattern %q", draft.Pattern)
	}

	var start, end time.Time
	var startOK, endOK bool
	if draft.StartDate == "" {
		result.add(CategoryStartDate, "start date is required")
	} else if parsed, err := parseDate(draft.StartDate); err != nil {
		result.add(CategoryStartDate, "start date %q is not a valid date", draft.StartDate)
	} else {
		start, startOK = parsed, true
	}

	if draft.EndDate != "" {
		if parsed, err := parseDate(draft.EndDate); err != nil {
			result.add(CategoryEndDate, "end date %q is not a valid date", draft.EndDate)
		} else {
			end, endOK = parsed, true
		}
	}

	if startOK && endOK && end.Before(start) {
		result.add(CategoryDateRange, "end date %s precedes start date %s",
			end.Format(model.DateLayout), start.Format(model.DateLayout))
	}

	if draft.Interval == nil {
		result.add(CategoryInterval, "interval is required")
	} else if *draft.Interval < 1 {
		result.add(CategoryInterval, "interval must be a positive integer, got %d", *draft.Interval)
	}

	v.validateConfig(draft, &result)

	return result
}

func (v *Validator) validateConfig(draft *model.RecurrenceDraft, result *Result) {
	switch model.Pattern(draft.Pattern) {
	case model.PatternWeekly:
		for _, wd := range draft.Config.WeekDays {
			if wd < 0 || wd > 6 {
				result.add(CategoryConfig, "weekday %d is outside 0-6", wd)
			}
		}
	case model.PatternMonthly:
		for _, md := range draft.Config.MonthDays {
			if md < 1 || md > 31 {
				result.add(CategoryConfig, "month day %d is outside 1-31", md)
			}
		}
	case model.PatternYearly:
		yc := draft.Config.Yearly
		if yc == nil {
			return
		}
		monthOK := true
		if yc.Month != 0 && (yc.Month < 1 || yc.Month > 12) {
			result.add(CategoryConfig, "yearly month %d is outside 1-12", yc.Month)
			monthOK = false
		}
		if yc.Day != 0 && (yc.Day < 1 || yc.Day > 31) {
			result.add(CategoryConfig, "yearly day %d is outside 1-31", yc.Day)
			return
		}
		if yc.Month != 0 && yc.Day != 0 && monthOK {
			// Feb 29 is allowed here; leap validity is re-checked per
			// occurrence. Feb 30 and the like are rejected outright.
			limit := daysIn(2001, time.Month(yc.Month))
			if yc.Month == int(time.February) {
				limit = 29
			}
			if yc.Day > limit {
				result.add(CategoryConfig, "day %d does not exist in month %d", yc.Day, yc.Month)
			}
		}
	case model.PatternDaily, model.PatternBiweekly:
		// No selector to check.
	}
}

// Normalize converts a draft into a fully-populated RecurrenceSpec,
// applying defaults: pattern "monthly", interval 1, active, start date
// "now", and pattern-specific selectors derived from the start date.
//
// A nil draft yields nil (the intentional no-op fallback, not a
// validation pass). Callers needing hard guarantees must Validate first.
// The draft is never mutated.
func (v *Validator) Normalize(draft *model.RecurrenceDraft) *model.RecurrenceSpec {
	if draft == nil {
		return nil
	}

	spec := &model.RecurrenceSpec{
		Pattern:          model.Pattern(draft.Pattern),
		Interval:         1,
		IsActive:         true,
		AdjustmentsMonth: draft.AdjustmentsMonth,
	}
	if draft.Interval != nil {
		spec.Interval = *draft.Interval
	}
	if draft.IsActive != nil {
		spec.IsActive = *draft.IsActive
	}
	if start, err := parseDate(draft.StartDate); err == nil {
		spec.StartDate = start
	}
	if end, err := parseDate(draft.EndDate); err == nil {
		spec.EndDate = &end
	}
	if last, err := parseDate(draft.LastProcessed); err == nil {
		spec.LastProcessed = &last
	}
	spec.Config.WeekDays = append([]int(nil), draft.Config.WeekDays...)
	spec.Config.MonthDays = append([]int(nil), draft.Config.MonthDays...)
	if draft.Config.Yearly != nil {
		yc := *draft.Config.Yearly
		spec.Config.Yearly = &yc
	}
	if len(draft.DailyAdjustments) > 0 {
		spec.DailyAdjustments = make(map[string]model.Adjustment, len(draft.DailyAdjustments))
		for k, adj := range draft.DailyAdjustments {
			spec.DailyAdjustments[k] = adj
		}
	}

	return v.normalizeSpec(spec)
}

// normalizeSpec fills remaining defaults in place and returns spec. It is
// shared by Normalize, ConvertFromLegacy, and the calculator's tolerant
// view of un-normalized specs.
func (v *Validator) normalizeSpec(spec *model.RecurrenceSpec) *model.RecurrenceSpec {
	if spec == nil {
		return nil
	}
	if spec.Pattern == "" {
		spec.Pattern = model.PatternMonthly
	}
	if spec.Interval < 1 {
		spec.Interval = 1
	}
	if spec.StartDate.IsZero() {
		spec.StartDate = truncateDay(v.now())
	}

	// Guarantee a non-empty selector for the selector-bearing patterns.
	switch spec.Pattern {
	case model.PatternWeekly:
		if len(spec.Config.WeekDays) == 0 {
			spec.Config.WeekDays = []int{int(spec.StartDate.Weekday())}
		}
		sort.Ints(spec.Config.WeekDays)
	case model.PatternMonthly:
		if len(spec.Config.MonthDays) == 0 {
			spec.Config.MonthDays = []int{spec.StartDate.Day()}
		}
		sort.Ints(spec.Config.MonthDays)
	case model.PatternYearly:
		if spec.Config.Yearly == nil {
			spec.Config.Yearly = &model.YearlyConfig{
				Month: int(spec.StartDate.Month()),
				Day:   spec.StartDate.Day(),
			}
		}
	case model.PatternDaily, model.PatternBiweekly:
		// No selector.
	}

	return spec
}

// LegacyFrequencies maps every recognized legacy frequency to its current
// pattern. Quarterly and biannual map to monthly WITHOUT touching the
// interval; the caller performing the migration is responsible for
// setting interval 3 or 6 alongside this mapping.
var LegacyFrequencies = map[string]model.Pattern{
	"daily":     model.PatternDaily,
	"weekly":    model.PatternWeekly,
	"biweekly":  model.PatternBiweekly,
	"monthly":   model.PatternMonthly,
	"yearly":    model.PatternYearly,
	"quarterly": model.PatternMonthly,
	"biannual":  model.PatternMonthly,
}

// ConvertFromLegacy maps a legacy recurring config into the current
// shape and normalizes the result. Unknown frequencies silently fall
// back to monthly. Explicit single-value selectors (dayOfWeek,
// dayOfMonth) win over specificDates; with neither present the selector
// derives from the start date during normalization.
//
// The function is pure: it never marks the source config as migrated.
// That bookkeeping belongs to the persistence layer.
func (v *Validator) ConvertFromLegacy(legacy *model.LegacyRecurringConfig, baseDate time.Time) *model.RecurrenceSpec {
	if legacy == nil {
		return nil
	}

	pattern, ok := LegacyFrequencies[legacy.Frequency]
	if !ok {
		pattern = model.PatternMonthly
	}

	spec := &model.RecurrenceSpec{
		Pattern:          pattern,
		Interval:         legacy.Interval,
		IsActive:         true,
		AdjustmentsMonth: legacy.AdjustmentsMonth,
	}
	if legacy.IsActive != nil {
		spec.IsActive = *legacy.IsActive
	}
	if start, err := parseDate(legacy.StartDate); err == nil {
		spec.StartDate = start
	} else if !baseDate.IsZero() {
		spec.StartDate = truncateDay(baseDate)
	}
	if end, err := parseDate(legacy.EndDate); err == nil {
		spec.EndDate = &end
	}
	if last, err := parseDate(legacy.LastProcessed); err == nil {
		spec.LastProcessed = &last
	}

	switch pattern {
	case model.PatternWeekly:
		switch {
		case legacy.DayOfWeek != nil:
			spec.Config.WeekDays = []int{*legacy.DayOfWeek}
		case len(legacy.SpecificDates) > 0:
			spec.Config.WeekDays = append([]int(nil), legacy.SpecificDates...)
		}
	case model.PatternMonthly:
		switch {
		case legacy.DayOfMonth != nil:
			spec.Config.MonthDays = []int{*legacy.DayOfMonth}
		case len(legacy.SpecificDates) > 0:
			spec.Config.MonthDays = append([]int(nil), legacy.SpecificDates...)
		}
	case model.PatternDaily, model.PatternBiweekly, model.PatternYearly:
		// Daily/biweekly carry no selector; the legacy shape had no
		// yearly selector, so normalization derives it from the start.
	}

	if len(legacy.DailyAdjustments) > 0 {
		spec.DailyAdjustments = make(map[string]model.Adjustment, len(legacy.DailyAdjustments))
		for k, adj := range legacy.DailyAdjustments {
			spec.DailyAdjustments[k] = adj
		}
	}

	return v.normalizeSpec(spec)
}

// parseDate parses a calendar date in the wire layout, with an RFC 3339
// fallback for values that carry a time component.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(model.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, err)
	}
	return truncateDay(t), nil
}
