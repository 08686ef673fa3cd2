package domain

import (
	"fmt"
	"time"
)

// DayHours is one weekday's entry in a provider's working-hours table. When
// Available is false, Start and End carry no meaning.
type DayHours struct {
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Available bool      `json:"available"`
}

// WeeklyWorkingHours maps each weekday to the provider's hours for that day.
// It is reference data owned by the provider directory; the rule engine only
// reads it.
type WeeklyWorkingHours map[time.Weekday]DayHours

// DayAvailability is the resolved answer for one concrete date.
type DayAvailability struct {
	Weekday   time.Weekday
	Available bool
	Start     TimeOfDay
	End       TimeOfDay
}

// ScheduleConfigError reports a working-hours table with no entry for the
// requested weekday.
type ScheduleConfigError struct {
	Weekday time.Weekday
}

func (e *ScheduleConfigError) Error() string {
	return fmt.Sprintf("no working hours configured for %s", e.Weekday)
}

// ResolveAvailability maps the date to its weekday and returns the matching
// working-hours entry. It fails only when the table lacks an entry for that
// weekday.
func ResolveAvailability(hours WeeklyWorkingHours, date Date) (DayAvailability, error) {
	wd := date.Weekday()
	dh, ok := hours[wd]
	if !ok {
		return DayAvailability{}, &ScheduleConfigError{Weekday: wd}
	}
	if !dh.Available {
		return DayAvailability{Weekday: wd}, nil
	}
	return DayAvailability{Weekday: wd, Available: true, Start: dh.Start, End: dh.End}, nil
}

// Validate rejects windows that cannot describe an open day.
func (h WeeklyWorkingHours) Validate() error {
	for wd, dh := range h {
		if !dh.Available {
			continue
		}
		if dh.Start < 0 || dh.End > minutesPerDay || dh.End <= dh.Start {
			return fmt.Errorf("invalid working hours for %s: %s-%s", wd, dh.Start, dh.End)
		}
	}
	return nil
}
