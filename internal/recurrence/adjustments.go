package recurrence

import (
	"fmt"
	"math"
	"time"

	"github.com/duecycle/duecycle/internal/model"
)

// monthWithAdjustments sums the amortized daily amount across every day
// of the target month, applying the per-day override delta where one
// exists. A day's effective amount can be reduced to zero but never
// below it. The result is rounded to the nearest whole currency unit.
func monthWithAdjustments(amount float64, spec *model.RecurrenceSpec, adjustments map[string]model.Adjustment, now time.Time) float64 {
	dailyBase := amount / cycleDays(spec.Pattern, spec.Interval)

	total := 0.0
	for day := 1; day <= daysIn(now.Year(), now.Month()); day++ {
		if adjustment, ok := adjustments[dayKey(day)]; ok {
			total += math.Max(0, dailyBase+adjustment.Amount)
		} else {
			total += dailyBase
		}
	}
	return math.Round(total)
}

// cycleDays is the length in days of one full cycle of the rule, used to
// amortize the base amount into a per-day figure.
func cycleDays(pattern model.Pattern, interval int) float64 {
	switch pattern {
	case model.PatternDaily:
		return math.Max(1, float64(interval))
	case model.PatternWeekly:
		return math.Max(1, float64(interval)*7)
	case model.PatternBiweekly:
		return 14
	case model.PatternMonthly:
		switch interval {
		case quincenalInterval:
			return 15
		case 1, 30:
			return 30
		default:
			return float64(interval) * averageDaysPerMonth
		}
	case model.PatternYearly:
		return float64(interval) * 365
	}
	return 30
}

// dayKey is the zero-padded day-of-month key used by DailyAdjustments.
func dayKey(day int) string {
	return fmt.Sprintf("%02d", day)
}
