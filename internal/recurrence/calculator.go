package recurrence

import (
	"math"
	"sort"
	"time"

	"github.com/duecycle/duecycle/internal/model"
)

// Calculator computes occurrence dates and monetary aggregates for an
// obligation's recurrence rule. It tolerates un-normalized specs by
// deriving a normalized view internally, but never mutates the input.
type Calculator struct {
	validator *Validator
	now       func() time.Time
}

// NewCalculator creates a calculator using the system clock.
func NewCalculator() *Calculator {
	return &Calculator{
		validator: NewValidator(),
		now:       time.Now,
	}
}

// specView returns a normalized private copy of the obligation's rule,
// or nil when the obligation carries no current-shape rule. Legacy rules
// must go through Validator.ConvertFromLegacy before the calculator will
// look at them.
func (c *Calculator) specView(o *model.Obligation) *model.RecurrenceSpec {
	if o == nil || o.Recurrence == nil {
		return nil
	}
	spec := o.Recurrence.Clone()
	if spec.StartDate.IsZero() && !o.Date.IsZero() {
		spec.StartDate = truncateDay(o.Date)
	}
	return c.validator.normalizeSpec(spec)
}

// NextOccurrence returns the next occurrence strictly derived from the
// rule's anchor (last processed date when present, otherwise the start
// date), or nil when the rule is inactive, past its end date, unknown,
// or yields an impossible calendar date this cycle (a Feb 29 target in a
// non-leap year). Callers should log a nil result for a known-active
// rule with an unknown pattern as a data-integrity signal.
func (c *Calculator) NextOccurrence(o *model.Obligation, baseDate time.Time) *time.Time {
	spec := c.specView(o)
	if spec == nil || !spec.IsActive {
		return nil
	}

	anchor := spec.StartDate
	if spec.LastProcessed != nil {
		anchor = *spec.LastProcessed
	}

	var next *time.Time
	if anchor.After(baseDate) {
		// The anchor itself is still in the future; no stepping needed.
		next = &anchor
	} else {
		next = stepFrom(spec, anchor)
	}
	if next == nil {
		return nil
	}
	if spec.EndDate != nil && next.After(*spec.EndDate) {
		return nil
	}
	return next
}

// stepFrom advances one cycle past the anchor according to the pattern.
func stepFrom(spec *model.RecurrenceSpec, anchor time.Time) *time.Time {
	switch spec.Pattern {
	case model.PatternDaily:
		d := anchor.AddDate(0, 0, spec.Interval)
		return &d

	case model.PatternWeekly:
		return stepWeekly(spec, anchor)

	case model.PatternBiweekly:
		// Fixed cadence; the interval is not consulted.
		d := anchor.AddDate(0, 0, 14)
		return &d

	case model.PatternMonthly:
		return stepMonthly(spec, anchor)

	case model.PatternYearly:
		return stepYearly(spec, anchor)
	}
	return nil
}

func stepWeekly(spec *model.RecurrenceSpec, anchor time.Time) *time.Time {
	weekDays := append([]int(nil), spec.Config.WeekDays...)
	if len(weekDays) == 0 {
		d := anchor.AddDate(0, 0, 7*spec.Interval)
		return &d
	}
	sort.Ints(weekDays)

	anchorWD := int(anchor.Weekday())
	for _, wd := range weekDays {
		if wd > anchorWD {
			d := anchor.AddDate(0, 0, wd-anchorWD)
			return &d
		}
	}
	// No later weekday this week: jump ahead and take the first one.
	d := anchor.AddDate(0, 0, 7*spec.Interval-anchorWD+weekDays[0])
	return &d
}

func stepMonthly(spec *model.RecurrenceSpec, anchor time.Time) *time.Time {
	monthDays := append([]int(nil), spec.Config.MonthDays...)
	if len(monthDays) == 0 {
		d := addMonthsClamped(anchor, spec.Interval, anchor.Day())
		return &d
	}
	sort.Ints(monthDays)

	for _, md := range monthDays {
		if md > anchor.Day() {
			d := dateClamped(anchor.Year(), anchor.Month(), md, anchor.Location())
			return &d
		}
	}
	// No later day this month: jump ahead and take the first one.
	d := addMonthsClamped(anchor, spec.Interval, monthDays[0])
	return &d
}

func stepYearly(spec *model.RecurrenceSpec, anchor time.Time) *time.Time {
	yc := spec.Config.Yearly
	if yc == nil {
		d := anchor.AddDate(spec.Interval, 0, 0)
		return &d
	}

	year := anchor.Year()
	if !afterMonthDay(yc.Month, yc.Day, anchor) {
		year += spec.Interval
	}
	if yc.Day > daysIn(year, time.Month(yc.Month)) {
		// Impossible target (e.g. Feb 29 in a non-leap year). Surface
		// "no occurrence this cycle" rather than shifting the date.
		return nil
	}
	d := time.Date(year, time.Month(yc.Month), yc.Day, 0, 0, 0, 0, anchor.Location())
	return &d
}

// afterMonthDay reports whether the month/day target still lies ahead of
// t within t's own year.
func afterMonthDay(month, day int, t time.Time) bool {
	if month != int(t.Month()) {
		return month > int(t.Month())
	}
	return day > t.Day()
}

// IsOccurrenceDate reports whether the exact date would be generated by
// the rule. It is deliberately independent of NextOccurrence's stepping
// search: membership is modulo arithmetic against the rule's start date.
func (c *Calculator) IsOccurrenceDate(o *model.Obligation, date time.Time) bool {
	spec := c.specView(o)
	if spec == nil || !spec.IsActive {
		return false
	}

	start := truncateDay(spec.StartDate)
	day := truncateDay(date)
	if day.Before(start) {
		return false
	}
	if spec.EndDate != nil && day.After(truncateDay(*spec.EndDate)) {
		return false
	}

	days := daysBetween(start, day)

	switch spec.Pattern {
	case model.PatternDaily:
		return days%spec.Interval == 0

	case model.PatternWeekly:
		if len(spec.Config.WeekDays) > 0 && !containsInt(spec.Config.WeekDays, int(day.Weekday())) {
			return false
		}
		return (days/7)%spec.Interval == 0

	case model.PatternBiweekly:
		return (days/14)%spec.Interval == 0

	case model.PatternMonthly:
		if len(spec.Config.MonthDays) > 0 && !containsInt(spec.Config.MonthDays, day.Day()) {
			return false
		}
		return monthsBetween(start, day)%spec.Interval == 0

	case model.PatternYearly:
		month, mday := int(start.Month()), start.Day()
		if yc := spec.Config.Yearly; yc != nil {
			month, mday = yc.Month, yc.Day
		}
		if int(day.Month()) != month || day.Day() != mday {
			return false
		}
		return (day.Year()-start.Year())%spec.Interval == 0
	}
	return false
}

// OccurrencesInPeriod enumerates every occurrence within [start, end] in
// ascending order. The seed (the later of the period start and the
// rule's start) is included only when it independently satisfies
// IsOccurrenceDate; subsequent dates come from repeated stepping. A
// stepping function that stops advancing terminates the enumeration
// rather than spinning.
func (c *Calculator) OccurrencesInPeriod(o *model.Obligation, start, end time.Time) []time.Time {
	spec := c.specView(o)
	if spec == nil || !spec.IsActive {
		return nil
	}
	if start.After(end) {
		return nil
	}
	if spec.EndDate != nil && spec.EndDate.Before(start) {
		return nil
	}
	if spec.StartDate.After(end) {
		return nil
	}

	seed := truncateDay(start)
	if ruleStart := truncateDay(spec.StartDate); ruleStart.After(seed) {
		seed = ruleStart
	}

	var occurrences []time.Time
	if c.IsOccurrenceDate(o, seed) {
		occurrences = append(occurrences, seed)
	}

	stepper := &model.Obligation{
		Amount:     o.Amount,
		Date:       o.Date,
		Recurrence: spec.Clone(),
	}
	current := seed
	for {
		stepper.Recurrence.LastProcessed = &current
		next := c.NextOccurrence(stepper, current)
		if next == nil {
			break
		}
		if !next.After(current) {
			// The stepping function stopped advancing. Reachable for
			// clamped monthly rules: day 31 stepping from a clamped
			// Feb 28 reproduces Feb 28.
			break
		}
		if next.After(end) {
			break
		}
		occurrences = append(occurrences, *next)
		current = *next
	}
	return occurrences
}

// AmountForPeriod returns the exact total due in [start, end]: the base
// amount times the occurrence count. Daily adjustments are NOT applied
// here; MonthlyAmount is the only aggregation path that honors them.
// Degenerate input (nil obligation, zero dates, inverted range) yields 0.
func (c *Calculator) AmountForPeriod(o *model.Obligation, start, end time.Time) float64 {
	if o == nil || start.IsZero() || end.IsZero() || start.After(end) {
		return 0
	}
	occurrences := c.OccurrencesInPeriod(o, start, end)
	return o.Amount * float64(len(occurrences))
}

// MonthlyAmount estimates the amount due in the current month. When the
// rule carries daily adjustments for the current month the amortized
// per-day overlay is summed exactly; otherwise a closed-form per-pattern
// estimate applies. The estimate is statistical, not an occurrence
// count; use AmountForPeriod where exact billing totals are required.
//
// Monthly rules with an interval other than 1, 15, or 30 collapse to 0
// through the floor(1/interval) term; the exact path does not share this
// degenerate behavior.
func (c *Calculator) MonthlyAmount(o *model.Obligation) float64 {
	spec := c.specView(o)
	if spec == nil {
		return 0
	}

	now := c.now()
	if adjustments := spec.AdjustmentsFor(now.Format(model.MonthLayout)); adjustments != nil {
		return monthWithAdjustments(o.Amount, spec, adjustments, now)
	}

	amount := o.Amount
	interval := float64(spec.Interval)
	switch spec.Pattern {
	case model.PatternDaily:
		return amount * math.Floor(averageDaysPerMonth/interval)
	case model.PatternWeekly:
		return amount * math.Floor(averageWeeksPerMonth/interval)
	case model.PatternBiweekly:
		return amount * 2
	case model.PatternMonthly:
		switch spec.Interval {
		case quincenalInterval:
			return amount * 2
		case 1, 30:
			return amount
		default:
			return amount * math.Floor(1/interval)
		}
	case model.PatternYearly:
		return amount / 12
	}
	return 0
}

// Average cycle lengths used by the closed-form monthly estimates.
const (
	averageDaysPerMonth  = 30.44
	averageWeeksPerMonth = 4.33

	// quincenalInterval is the legacy twice-a-month encoding: a monthly
	// rule with interval 15.
	quincenalInterval = 15
)

func containsInt(values []int, v int) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

// truncateDay strips the time component, keeping the location.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween is the calendar-day difference, rounded to the nearest
// whole day to absorb daylight-saving artifacts on inputs that carry a
// time component.
func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// monthsBetween is the calendar-month difference, ignoring days.
func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// dateClamped builds a date, clamping the day to the month's last valid
// day (day 31 in a 30-day month resolves to day 30).
func dateClamped(year int, month time.Month, day int, loc *time.Location) time.Time {
	if limit := daysIn(year, month); day > limit {
		day = limit
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// addMonthsClamped moves forward by whole months and lands on the given
// day of the target month, clamped to its length. time.AddDate is not
// used because it normalizes overflow into the following month.
func addMonthsClamped(t time.Time, months, day int) time.Time {
	total := int(t.Month()) - 1 + months
	year := t.Year() + total/12
	month := time.Month(total%12 + 1)
	return dateClamped(year, month, day, t.Location())
}
