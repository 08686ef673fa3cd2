package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a clock time expressed as minutes since midnight.
// All appointment windows are half-open: [start, end).
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM" in 24-hour notation. Both fields must be
// exactly two digits; anything else is rejected rather than guessed at.
// "24:00" is accepted so a working-hours window can end at midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, okH := twoDigits(hh)
	m, okM := twoDigits(mm)
	if !okH || !okM {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns the time shifted forward by the given number of minutes. The
// result may pass midnight; callers validate against minutesPerDay.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar date with no time zone attached. Weekday derivation and
// date arithmetic go through the proleptic Gregorian calendar via package
// time at UTC midnight, never through locale-formatted strings.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates an instant to its calendar date in the instant's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

// Time returns the date at UTC midnight.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

func (d Date) After(o Date) bool {
	return d.Time().After(o.Time())
}

func (d Date) Equal(o Date) bool {
	return d == o
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the length of the given month, accounting for leap
// years.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampedDate builds a date from possibly out-of-range components: month
// overflow rolls into later years and a day past the end of the month clamps
// to the month's last day (it never rolls over).
func ClampedDate(year int, month time.Month, day int) Date {
	norm := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	y, m, _ := norm.Date()
	if max := DaysInMonth(y, m); day > max {
		day = max
	}
	if day < 1 {
		day = 1
	}
	return Date{Year: y, Month: m, Day: day}
}

// ISO weekday numbering used on the wire and in recurrence rules:
// 1=Monday .. 7=Sunday.

func ISOWeekday(wd time.Weekday) int16 {
	if wd == time.Sunday {
		return 7
	}
	return int16(wd)
}

func WeekdayFromISO(iso int16) (time.Weekday, error) {
	if iso < 1 || iso > 7 {
		return 0, errors.New("invalid weekday")
	}
	if iso == 7 {
		return time.Sunday, nil
	}
	return time.Weekday(iso), nil
}
