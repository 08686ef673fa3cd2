package domain

import (
	"testing"
	"time"
)

func seedCandidate(date Date) Candidate {
	return Candidate{
		ProviderID:      testProviderID,
		PatientID:       testPatientID,
		Date:            date,
		Start:           9 * 60,
		DurationMinutes: 30,
	}
}

func intPtr(n int) *int { return &n }

func occurrenceDates(exp Expansion) []string {
	out := make([]string, 0, len(exp.Occurrences))
	for _, o := range exp.Occurrences {
		out = append(out, o.Date.String())
	}
	return out
}

func assertDates(t *testing.T, exp Expansion, want []string) {
	t.Helper()
	got := occurrenceDates(exp)
	if len(got) != len(want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dates = %v, want %v", got, want)
		}
	}
}

func TestExpandPattern_Validation(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.June, 16))

	tests := []struct {
		name    string
		seed    Candidate
		pattern RecurrencePattern
		wantErr string
	}{
		{
			name:    "unsupported frequency",
			seed:    seed,
			pattern: RecurrencePattern{Frequency: "hourly", Count: intPtr(2)},
			wantErr: "unsupported recurrence frequency",
		},
		{
			name:    "count below one",
			seed:    seed,
			pattern: RecurrencePattern{Frequency: FrequencyDaily, Count: intPtr(0)},
			wantErr: "count must be at least 1",
		},
		{
			name: "count and until together",
			seed: seed,
			pattern: RecurrencePattern{
				Frequency: FrequencyDaily,
				Count:     intPtr(2),
				Until:     &Date{Year: 2025, Month: time.July, Day: 1},
			},
			wantErr: "count and until are mutually exclusive",
		},
		{
			name: "until before seed",
			seed: seed,
			pattern: RecurrencePattern{
				Frequency: FrequencyDaily,
				Until:     &Date{Year: 2025, Month: time.June, Day: 1},
			},
			wantErr: "until must not be before the seed date",
		},
		{
			name:    "invalid weekday",
			seed:    seed,
			pattern: RecurrencePattern{Frequency: FrequencyWeekly, ByWeekday: []int16{0}, Count: intPtr(2)},
			wantErr: "invalid weekday",
		},
		{
			name:    "invalid day of month",
			seed:    seed,
			pattern: RecurrencePattern{Frequency: FrequencyMonthly, DayOfMonth: 32, Count: intPtr(2)},
			wantErr: "day_of_month must be between 1 and 31",
		},
		{
			name: "invalid duration",
			seed: func() Candidate {
				s := seed
				s.DurationMinutes = 0
				return s
			}(),
			pattern: RecurrencePattern{Frequency: FrequencyDaily, Count: intPtr(2)},
			wantErr: "duration must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandPattern(tt.seed, tt.pattern)
			if err == nil {
				t.Fatalf("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestExpandPattern_DailyCount(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.June, 16))

	exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyDaily, Interval: 2, Count: intPtr(4)})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2025-06-16", "2025-06-18", "2025-06-20", "2025-06-22"})
	if exp.DefaultCapApplied {
		t.Fatalf("DefaultCapApplied must be false for a bounded pattern")
	}
	for i, o := range exp.Occurrences {
		if o.Index != i {
			t.Fatalf("occurrence %d has index %d", i, o.Index)
		}
		if o.Start != seed.Start || o.DurationMinutes != seed.DurationMinutes {
			t.Fatalf("occurrence %d does not carry the seed times: %+v", i, o)
		}
	}
}

func TestExpandPattern_CountProducesExactlyNAscending(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.June, 16))

	for _, count := range []int{1, 5, 40} {
		exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyDaily, Count: intPtr(count)})
		if err != nil {
			t.Fatalf("ExpandPattern error: %v", err)
		}
		if len(exp.Occurrences) != count {
			t.Fatalf("len = %d, want %d", len(exp.Occurrences), count)
		}
		if !exp.Occurrences[0].Date.Equal(seed.Date) {
			t.Fatalf("occurrence 0 = %v, want the seed date", exp.Occurrences[0].Date)
		}
		for i := 1; i < len(exp.Occurrences); i++ {
			if !exp.Occurrences[i-1].Date.Before(exp.Occurrences[i].Date) {
				t.Fatalf("dates not strictly ascending at %d: %v", i, occurrenceDates(exp))
			}
		}
	}
}

func TestExpandPattern_UntilBound(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.June, 16))
	until := NewDate(2025, time.June, 30)

	exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyWeekly, Until: &until})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2025-06-16", "2025-06-23", "2025-06-30"})
}

func TestExpandPattern_WeeklyByWeekdayOrdering(t *testing.T) {
	// 2025-06-18 is a Wednesday; the rule names Friday and Monday.
	seed := seedCandidate(NewDate(2025, time.June, 18))

	exp, err := ExpandPattern(seed, RecurrencePattern{
		Frequency: FrequencyWeekly,
		ByWeekday: []int16{5, 1, 5},
		Count:     intPtr(4),
	})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	// Monday of the seed week is before the seed and is skipped.
	assertDates(t, exp, []string{"2025-06-20", "2025-06-23", "2025-06-27", "2025-06-30"})
}

func TestExpandPattern_WeeklyIntervalWindows(t *testing.T) {
	// 2025-06-16 is a Monday; every second week on Mondays.
	seed := seedCandidate(NewDate(2025, time.June, 16))

	exp, err := ExpandPattern(seed, RecurrencePattern{
		Frequency: FrequencyWeekly,
		Interval:  2,
		ByWeekday: []int16{1},
		Count:     intPtr(3),
	})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2025-06-16", "2025-06-30", "2025-07-14"})
}

func TestExpandPattern_MonthlyClampsShortMonths(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.January, 31))

	exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyMonthly, Count: intPtr(3)})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2025-01-31", "2025-02-28", "2025-03-31"})
}

func TestExpandPattern_MonthlyDayOfMonthOverride(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.April, 2))

	exp, err := ExpandPattern(seed, RecurrencePattern{
		Frequency:  FrequencyMonthly,
		DayOfMonth: 15,
		Count:      intPtr(3),
	})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2025-04-15", "2025-05-15", "2025-06-15"})
}

func TestExpandPattern_MonthlyDayOfMonthBeforeSeedSkips(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.April, 20))

	exp, err := ExpandPattern(seed, RecurrencePattern{
		Frequency:  FrequencyMonthly,
		DayOfMonth: 15,
		Count:      intPtr(3),
	})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	// April 15 precedes the seed, so the series starts in May.
	assertDates(t, exp, []string{"2025-05-15", "2025-06-15", "2025-07-15"})
}

func TestExpandPattern_YearlyLeapDayClamps(t *testing.T) {
	seed := seedCandidate(NewDate(2024, time.February, 29))

	exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyYearly, Count: intPtr(3)})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2024-02-29", "2025-02-28", "2026-02-28"})
}

func TestExpandPattern_UnboundedAppliesDefaultCap(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.June, 16))

	exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyDaily})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	if !exp.DefaultCapApplied {
		t.Fatalf("expected DefaultCapApplied")
	}
	if len(exp.Occurrences) == 0 || len(exp.Occurrences) > DefaultOccurrenceCap {
		t.Fatalf("len = %d, want at most %d", len(exp.Occurrences), DefaultOccurrenceCap)
	}
	last := exp.Occurrences[len(exp.Occurrences)-1].Date
	if last.After(NewDate(2026, time.June, 16)) {
		t.Fatalf("last occurrence %v exceeds the one-year cap", last)
	}

	weekly, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyWeekly})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	if !weekly.DefaultCapApplied {
		t.Fatalf("expected DefaultCapApplied for unbounded weekly pattern")
	}
	if len(weekly.Occurrences) != 53 {
		t.Fatalf("len = %d, want 53 weekly occurrences within one year", len(weekly.Occurrences))
	}
}

func TestExpandPattern_IntervalNormalizedToOne(t *testing.T) {
	seed := seedCandidate(NewDate(2025, time.June, 16))

	exp, err := ExpandPattern(seed, RecurrencePattern{Frequency: FrequencyDaily, Interval: 0, Count: intPtr(2)})
	if err != nil {
		t.Fatalf("ExpandPattern error: %v", err)
	}
	assertDates(t, exp, []string{"2025-06-16", "2025-06-17"})
}
