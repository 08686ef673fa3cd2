package domain

import (
	"errors"
	"sort"
	"time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// DefaultOccurrenceCap bounds expansion when a pattern carries neither a
// count nor an end date. Together with the one-year date cap it keeps an
// unbounded rule from generating output forever.
const DefaultOccurrenceCap = 366

// RecurrencePattern describes how a seed appointment repeats.
//
// Count and Until are mutually exclusive: at most one of them bounds the
// series. When both are absent the expander applies the default cap and
// reports it, so a forgotten bound degrades to a warning instead of an
// unbounded series.
type RecurrencePattern struct {
	Frequency Frequency
	// Interval is "every N units"; values below 1 are treated as 1.
	Interval int
	// ByWeekday holds ISO weekday numbers (1=Monday .. 7=Sunday) and only
	// applies to weekly patterns.
	ByWeekday []int16
	// DayOfMonth overrides the seed's day for monthly patterns; 0 means use
	// the seed's day.
	DayOfMonth int
	Until      *Date
	Count      *int
}

// Occurrence is one concrete date instance generated from a recurrence rule.
// It carries the seed's provider, patient, start time and duration; only the
// date and index differ.
type Occurrence struct {
	Candidate
	Index int
}

type Expansion struct {
	Occurrences []Occurrence
	// DefaultCapApplied is set when the pattern had neither Count nor Until
	// and the series was cut at the safety cap. Callers surface it as a
	// configuration warning.
	DefaultCapApplied bool
}

// ExpandPattern materializes the concrete occurrences a recurrence rule
// implies, starting from the seed. Output is finite, deterministic and
// strictly ascending by date; each occurrence is a fresh value owned by the
// caller. Expansion does not run conflict detection.
func ExpandPattern(seed Candidate, p RecurrencePattern) (Expansion, error) {
	if seed.DurationMinutes <= 0 {
		return Expansion{}, invalidCandidate("duration must be positive")
	}
	if seed.Start < 0 || seed.End() > minutesPerDay {
		return Expansion{}, invalidCandidate("appointment must start and end within one day")
	}
	if seed.Date.IsZero() {
		return Expansion{}, invalidCandidate("seed date is required")
	}
	if !p.Frequency.Valid() {
		return Expansion{}, errors.New("unsupported recurrence frequency")
	}
	if p.Count != nil && p.Until != nil {
		return Expansion{}, errors.New("count and until are mutually exclusive")
	}
	if p.Count != nil && *p.Count < 1 {
		return Expansion{}, errors.New("count must be at least 1")
	}
	if p.Until != nil && p.Until.Before(seed.Date) {
		return Expansion{}, errors.New("until must not be before the seed date")
	}
	if p.DayOfMonth != 0 && (p.DayOfMonth < 1 || p.DayOfMonth > 31) {
		return Expansion{}, errors.New("day_of_month must be between 1 and 31")
	}

	interval := p.Interval
	if interval < 1 {
		interval = 1
	}

	maxCount := -1
	until := p.Until
	capped := false
	if p.Count != nil {
		maxCount = *p.Count
	} else if until == nil {
		// Unbounded rule: cut at whichever safety limit is reached first.
		capped = true
		maxCount = DefaultOccurrenceCap
		u := ClampedDate(seed.Date.Year+1, seed.Date.Month, seed.Date.Day)
		until = &u
	}

	var dates []Date
	var err error
	switch p.Frequency {
	case FrequencyWeekly:
		dates, err = weeklyDates(seed.Date, interval, p.ByWeekday, maxCount, until)
	default:
		dates = steppedDates(seed.Date, p, interval, maxCount, until)
	}
	if err != nil {
		return Expansion{}, err
	}

	out := make([]Occurrence, 0, len(dates))
	for i, d := range dates {
		c := seed
		c.Date = d
		out = append(out, Occurrence{Candidate: c, Index: i})
	}

	return Expansion{Occurrences: out, DefaultCapApplied: capped}, nil
}

// steppedDates covers the frequencies whose step i is a pure function of the
// seed date: daily, monthly and yearly. Dates before the seed are skipped,
// matching the weekly path: a DayOfMonth earlier than the seed's day starts
// the series in the following month.
func steppedDates(seed Date, p RecurrencePattern, interval, maxCount int, until *Date) []Date {
	dayOfMonth := seed.Day
	if p.DayOfMonth > 0 {
		dayOfMonth = p.DayOfMonth
	}

	var out []Date
	for i := 0; ; i++ {
		if maxCount >= 0 && len(out) >= maxCount {
			return out
		}

		var d Date
		switch p.Frequency {
		case FrequencyDaily:
			d = seed.AddDays(i * interval)
		case FrequencyMonthly:
			d = ClampedDate(seed.Year, seed.Month+time.Month(i*interval), dayOfMonth)
		case FrequencyYearly:
			d = ClampedDate(seed.Year+i*interval, seed.Month, seed.Day)
		}

		if d.Before(seed) {
			continue
		}
		if until != nil && d.After(*until) {
			return out
		}
		out = append(out, d)
	}
}

// weeklyDates enumerates matching weekdays inside Monday-based windows of
// interval weeks, in ascending weekday order, skipping dates before the
// seed. Windows keep advancing until a bound cuts the series.
func weeklyDates(seed Date, interval int, byWeekday []int16, maxCount int, until *Date) ([]Date, error) {
	weekdays := make([]int16, 0, len(byWeekday))
	seen := make(map[int16]struct{}, len(byWeekday))
	for _, wd := range byWeekday {
		if wd < 1 || wd > 7 {
			return nil, errors.New("invalid weekday")
		}
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		weekdays = append(weekdays, wd)
	}
	if len(weekdays) == 0 {
		weekdays = append(weekdays, ISOWeekday(seed.Weekday()))
	}
	sort.Slice(weekdays, func(i, j int) bool { return weekdays[i] < weekdays[j] })

	weekStart := mondayOf(seed)

	var out []Date
	for week := 0; ; week++ {
		windowStart := weekStart.AddDays(week * interval * 7)
		for _, wd := range weekdays {
			d := windowStart.AddDays(weekdayOffsetFromMonday(wd))
			if d.Before(seed) {
				continue
			}
			if until != nil && d.After(*until) {
				return out, nil
			}
			if maxCount >= 0 && len(out) >= maxCount {
				return out, nil
			}
			out = append(out, d)
		}
		if maxCount >= 0 && len(out) >= maxCount {
			return out, nil
		}
	}
}

func mondayOf(d Date) Date {
	wd := d.Weekday()
	offset := 0
	if wd == time.Sunday {
		offset = 6
	} else {
		offset = int(wd) - 1
	}
	return d.AddDays(-offset)
}

func weekdayOffsetFromMonday(weekday int16) int {
	if weekday == 7 {
		return 6
	}
	return int(weekday) - 1
}
