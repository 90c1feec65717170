package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPatternKnown(t *testing.T) {
	for _, p := range KnownPatterns {
		if !p.Known() {
			t.Errorf("pattern %q should be known", p)
		}
	}
	for _, p := range []Pattern{"", "hourly", "Monthly", "quarterly"} {
		if p.Known() {
			t.Errorf("pattern %q should not be known", p)
		}
	}
}

func TestRecurrenceSpecClone(t *testing.T) {
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	processed := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	spec := &RecurrenceSpec{
		Pattern:   PatternMonthly,
		Interval:  2,
		StartDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   &end,
		IsActive:  true,
		Config: RecurrenceConfig{
			MonthDays: []int{1, 15},
			Yearly:    &YearlyConfig{Month: 3, Day: 10},
		},
		LastProcessed:    &processed,
		DailyAdjustments: map[string]Adjustment{"15": {Amount: -100}},
		AdjustmentsMonth: "2025-03",
	}

	clone := spec.Clone()
	if clone == spec {
		t.Fatal("Clone returned the same pointer")
	}

	clone.Config.MonthDays[0] = 99
	*clone.EndDate = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	clone.DailyAdjustments["15"] = Adjustment{Amount: 500}
	clone.Config.Yearly.Day = 1

	if spec.Config.MonthDays[0] != 1 {
		t.Error("mutating clone month days leaked into the original")
	}
	if !spec.EndDate.Equal(end) {
		t.Error("mutating clone end date leaked into the original")
	}
	if spec.DailyAdjustments["15"].Amount != -100 {
		t.Error("mutating clone adjustments leaked into the original")
	}
	if spec.Config.Yearly.Day != 10 {
		t.Error("mutating clone yearly config leaked into the original")
	}

	var nilSpec *RecurrenceSpec
	if nilSpec.Clone() != nil {
		t.Error("cloning nil should return nil")
	}
}

func TestAdjustmentsFor(t *testing.T) {
	spec := &RecurrenceSpec{
		DailyAdjustments: map[string]Adjustment{"05": {Amount: 10}},
		AdjustmentsMonth: "2025-06",
	}

	if got := spec.AdjustmentsFor("2025-06"); len(got) != 1 {
		t.Errorf("expected adjustments for the recorded month, got %v", got)
	}
	if got := spec.AdjustmentsFor("2025-07"); got != nil {
		t.Errorf("adjustments for another month should be absent, got %v", got)
	}

	var nilSpec *RecurrenceSpec
	if nilSpec.AdjustmentsFor("2025-06") != nil {
		t.Error("nil spec should have no adjustments")
	}
}

func TestObligationIsLegacy(t *testing.T) {
	tests := []struct {
		obligation *Obligation
		name       string
		want       bool
	}{
		{name: "nil obligation", obligation: nil, want: false},
		{name: "no rule at all", obligation: &Obligation{}, want: false},
		{
			name:       "legacy only",
			obligation: &Obligation{Legacy: &LegacyRecurringConfig{Frequency: "monthly"}},
			want:       true,
		},
		{
			name: "migrated keeps legacy copy",
			obligation: &Obligation{
				Recurrence: &RecurrenceSpec{Pattern: PatternMonthly},
				Legacy:     &LegacyRecurringConfig{Frequency: "monthly"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obligation.IsLegacy(); got != tt.want {
				t.Errorf("IsLegacy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecurrenceDraftWireShape(t *testing.T) {
	payload := `{
		"pattern": "weekly",
		"interval": 2,
		"start_date": "2025-01-06",
		"is_active": false,
		"config": {"week_days": [1, 4]},
		"daily_adjustments": {"10": {"amount": -25.5}},
		"adjustments_month": "2025-02"
	}`

	var draft RecurrenceDraft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		t.Fatalf("failed to unmarshal draft: %v", err)
	}

	if draft.Pattern != "weekly" {
		t.Errorf("pattern = %q, want weekly", draft.Pattern)
	}
	if draft.Interval == nil || *draft.Interval != 2 {
		t.Errorf("interval = %v, want 2", draft.Interval)
	}
	if draft.IsActive == nil || *draft.IsActive {
		t.Error("is_active should be present and false")
	}
	if len(draft.Config.WeekDays) != 2 {
		t.Errorf("week_days = %v, want two entries", draft.Config.WeekDays)
	}
	if draft.DailyAdjustments["10"].Amount != -25.5 {
		t.Errorf("adjustment = %v, want -25.5", draft.DailyAdjustments["10"])
	}

	// Absent optionals stay nil so the validator can tell "absent" from
	// "present but zero".
	var empty RecurrenceDraft
	if err := json.Unmarshal([]byte(`{"pattern": "daily"}`), &empty); err != nil {
		t.Fatalf("failed to unmarshal minimal draft: %v", err)
	}
	if empty.Interval != nil || empty.IsActive != nil {
		t.Error("absent optional fields should unmarshal as nil")
	}
}
