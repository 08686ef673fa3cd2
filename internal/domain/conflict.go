package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type FindingKind string

const (
	FindingOutsideHours  FindingKind = "outside-hours"
	FindingOverlap       FindingKind = "overlap"
	FindingDoubleBooking FindingKind = "double-booking"
)

// ConflictFinding describes one scheduling problem with a candidate booking.
// Findings are ordinary data: a candidate with findings is still a valid
// candidate, and whether to book it anyway is the caller's policy.
type ConflictFinding struct {
	Kind          FindingKind `json:"kind"`
	Message       string      `json:"message"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
}

// Candidate is a proposed, not-yet-persisted booking under evaluation. The
// end time is always derived from Start and DurationMinutes.
type Candidate struct {
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Date            Date
	Start           TimeOfDay
	DurationMinutes int
}

func (c Candidate) End() TimeOfDay {
	return c.Start.Add(c.DurationMinutes)
}

type InvalidCandidateError struct {
	msg string
}

func (e *InvalidCandidateError) Error() string {
	return e.msg
}

func invalidCandidate(msg string) error {
	return &InvalidCandidateError{msg: msg}
}

// DetectConflicts evaluates a candidate against the resolved day availability
// and the provider's already-booked appointments. Findings come back in a
// fixed order: outside-hours first, then overlap and double-booking findings
// in the order existing was given. The function is pure; it never mutates
// existing and the same inputs always produce the same findings.
//
// Conflicts are never errors. An error means the candidate itself is
// malformed.
func DetectConflicts(c Candidate, avail DayAvailability, existing []Appointment) ([]ConflictFinding, error) {
	if c.DurationMinutes <= 0 {
		return nil, invalidCandidate("duration must be positive")
	}
	if c.Start < 0 || c.End() > minutesPerDay {
		return nil, invalidCandidate("appointment must start and end within one day")
	}

	var findings []ConflictFinding

	if !avail.Available {
		findings = append(findings, ConflictFinding{
			Kind:    FindingOutsideHours,
			Message: fmt.Sprintf("provider is not available on %ss", avail.Weekday),
		})
	} else if c.Start < avail.Start || c.End() > avail.End {
		findings = append(findings, ConflictFinding{
			Kind: FindingOutsideHours,
			Message: fmt.Sprintf("requested %s-%s is outside working hours %s-%s",
				c.Start, c.End(), avail.Start, avail.End),
		})
	}

	for _, e := range existing {
		if e.ProviderID != c.ProviderID {
			continue
		}
		if !e.Day().Equal(c.Date) {
			continue
		}
		if !e.Status.OccupiesCalendar() {
			continue
		}
		if !(c.Start < e.End() && e.Start() < c.End()) {
			continue
		}

		id := e.ID
		if e.Start() == c.Start {
			findings = append(findings, ConflictFinding{
				Kind:          FindingDoubleBooking,
				Message:       fmt.Sprintf("another appointment already starts at %s", e.Start()),
				AppointmentID: &id,
			})
			continue
		}
		findings = append(findings, ConflictFinding{
			Kind:          FindingOverlap,
			Message:       fmt.Sprintf("overlaps an existing appointment from %s to %s", e.Start(), e.End()),
			AppointmentID: &id,
		})
	}

	return findings, nil
}
