package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"clinicdesk/backend/internal/domain"
	"clinicdesk/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func validationError(msg string) error {
	return NewValidationError(msg)
}

type Service struct {
	appts     store.AppointmentRepository
	providers store.ProviderDirectory
	notifier  Notifier
}

func NewService(appts store.AppointmentRepository, providers store.ProviderDirectory, notifier Notifier) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{appts: appts, providers: providers, notifier: notifier}
}

type CheckInput struct {
	ProviderID      uuid.UUID
	Date            domain.Date
	StartTime       domain.TimeOfDay
	DurationMinutes int
}

func (in CheckInput) candidate(patientID uuid.UUID) domain.Candidate {
	return domain.Candidate{
		ProviderID:      in.ProviderID,
		PatientID:       patientID,
		Date:            in.Date,
		Start:           in.StartTime,
		DurationMinutes: in.DurationMinutes,
	}
}

// Check evaluates a candidate slot without booking anything.
func (s *Service) Check(ctx context.Context, in CheckInput) ([]domain.ConflictFinding, error) {
	if err := validateSlot(in.ProviderID, in.Date, in.DurationMinutes); err != nil {
		return nil, err
	}

	avail, err := s.resolveAvailability(ctx, in.ProviderID, in.Date)
	if err != nil {
		return nil, err
	}

	existing, err := s.appts.ListForProviderOnDate(ctx, in.ProviderID, in.Date)
	if err != nil {
		return nil, err
	}

	findings, err := domain.DetectConflicts(in.candidate(uuid.Nil), avail, existing)
	if err != nil {
		return nil, err
	}
	if len(findings) > 0 {
		s.notifier.ConflictsDetected(ctx, in.ProviderID, in.Date, findings)
	}
	return findings, nil
}

type BookInput struct {
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Date            domain.Date
	StartTime       domain.TimeOfDay
	DurationMinutes int
	Reason          string
	Notes           string
	// AllowConflicts persists the booking even when findings are present.
	// Whether to offer that override is the caller's policy.
	AllowConflicts bool
	IdempotencyKey string
}

type BookOutcome struct {
	Appointment domain.Appointment
	Findings    []domain.ConflictFinding
	Booked      bool
}

func (s *Service) Book(ctx context.Context, in BookInput) (BookOutcome, error) {
	if err := validateSlot(in.ProviderID, in.Date, in.DurationMinutes); err != nil {
		return BookOutcome{}, err
	}
	if in.PatientID == uuid.Nil {
		return BookOutcome{}, validationError("patient_id is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return BookOutcome{}, validationError("reason is required")
	}

	avail, err := s.resolveAvailability(ctx, in.ProviderID, in.Date)
	if err != nil {
		return BookOutcome{}, err
	}

	candidate := domain.Candidate{
		ProviderID:      in.ProviderID,
		PatientID:       in.PatientID,
		Date:            in.Date,
		Start:           in.StartTime,
		DurationMinutes: in.DurationMinutes,
	}

	appt := domain.Appointment{
		ProviderID:  in.ProviderID,
		PatientID:   in.PatientID,
		Reason:      reason,
		Notes:       in.Notes,
		Date:        in.Date.Time(),
		StartMinute: int(in.StartTime),
		EndMinute:   int(candidate.End()),
		Status:      domain.AppointmentStatusScheduled,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return BookOutcome{}, validationError("idempotency_key too long")
		}
		appt.ID = idempotentID(in.ProviderID, key)
	}

	var out BookOutcome
	err = s.appts.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		existing, err := tx.ListAppointmentsOnDate(ctx, in.ProviderID, in.Date)
		if err != nil {
			return err
		}
		findings, err := domain.DetectConflicts(candidate, avail, existing)
		if err != nil {
			return err
		}
		out.Findings = findings
		if len(findings) > 0 && !in.AllowConflicts {
			return nil
		}
		created, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out.Appointment = created
		out.Booked = true
		return nil
	})
	if err != nil {
		return BookOutcome{}, err
	}

	if len(out.Findings) > 0 {
		s.notifier.ConflictsDetected(ctx, in.ProviderID, in.Date, out.Findings)
	}
	return out, nil
}

type BookRecurringInput struct {
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Date            domain.Date
	StartTime       domain.TimeOfDay
	DurationMinutes int
	Reason          string
	Notes           string
	Pattern         domain.RecurrencePattern
	AllowConflicts  bool
}

// OccurrenceFindings carries the conflict findings for one occurrence of a
// recurring booking.
type OccurrenceFindings struct {
	Index    int
	Date     domain.Date
	Findings []domain.ConflictFinding
}

type RecurringOutcome struct {
	Appointments      []domain.Appointment
	Findings          []OccurrenceFindings
	Booked            bool
	DefaultCapApplied bool
}

// BookRecurring expands the pattern and runs every occurrence through
// conflict detection inside one provider transaction. All occurrences are
// persisted together, or none are.
func (s *Service) BookRecurring(ctx context.Context, in BookRecurringInput) (RecurringOutcome, error) {
	if err := validateSlot(in.ProviderID, in.Date, in.DurationMinutes); err != nil {
		return RecurringOutcome{}, err
	}
	if in.PatientID == uuid.Nil {
		return RecurringOutcome{}, validationError("patient_id is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return RecurringOutcome{}, validationError("reason is required")
	}

	seed := domain.Candidate{
		ProviderID:      in.ProviderID,
		PatientID:       in.PatientID,
		Date:            in.Date,
		Start:           in.StartTime,
		DurationMinutes: in.DurationMinutes,
	}

	expansion, err := domain.ExpandPattern(seed, in.Pattern)
	if err != nil {
		return RecurringOutcome{}, validationError(err.Error())
	}

	hours, err := s.providers.WorkingHours(ctx, in.ProviderID)
	if err != nil {
		return RecurringOutcome{}, err
	}

	out := RecurringOutcome{DefaultCapApplied: expansion.DefaultCapApplied}
	err = s.appts.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		out.Appointments = nil
		out.Findings = nil

		pending := make([]domain.Appointment, 0, len(expansion.Occurrences))
		for _, occ := range expansion.Occurrences {
			avail, err := domain.ResolveAvailability(hours, occ.Date)
			if err != nil {
				return err
			}
			existing, err := tx.ListAppointmentsOnDate(ctx, in.ProviderID, occ.Date)
			if err != nil {
				return err
			}
			// Occurrences of the same series booked earlier in this loop are
			// not yet visible in existing; the expander guarantees distinct
			// dates per occurrence, so they cannot overlap each other.
			findings, err := domain.DetectConflicts(occ.Candidate, avail, existing)
			if err != nil {
				return err
			}
			if len(findings) > 0 {
				out.Findings = append(out.Findings, OccurrenceFindings{
					Index:    occ.Index,
					Date:     occ.Date,
					Findings: findings,
				})
			}
			pending = append(pending, domain.Appointment{
				ProviderID:  in.ProviderID,
				PatientID:   in.PatientID,
				Reason:      reason,
				Notes:       in.Notes,
				Date:        occ.Date.Time(),
				StartMinute: int(occ.Start),
				EndMinute:   int(occ.End()),
				Status:      domain.AppointmentStatusScheduled,
			})
		}

		if len(out.Findings) > 0 && !in.AllowConflicts {
			return nil
		}
		for _, appt := range pending {
			created, err := tx.CreateAppointment(ctx, appt)
			if err != nil {
				return err
			}
			out.Appointments = append(out.Appointments, created)
		}
		out.Booked = true
		return nil
	})
	if err != nil {
		return RecurringOutcome{}, err
	}

	for _, of := range out.Findings {
		s.notifier.ConflictsDetected(ctx, in.ProviderID, of.Date, of.Findings)
	}
	return out, nil
}

type PreviewInput struct {
	ProviderID      uuid.UUID
	Date            domain.Date
	StartTime       domain.TimeOfDay
	DurationMinutes int
	Pattern         domain.RecurrencePattern
}

// PreviewOccurrences expands a pattern without touching storage.
func (s *Service) PreviewOccurrences(in PreviewInput) (domain.Expansion, error) {
	if in.Date.IsZero() {
		return domain.Expansion{}, validationError("date is required")
	}
	if in.DurationMinutes <= 0 {
		return domain.Expansion{}, validationError("duration_minutes must be positive")
	}

	seed := domain.Candidate{
		ProviderID:      in.ProviderID,
		Date:            in.Date,
		Start:           in.StartTime,
		DurationMinutes: in.DurationMinutes,
	}
	expansion, err := domain.ExpandPattern(seed, in.Pattern)
	if err != nil {
		return domain.Expansion{}, validationError(err.Error())
	}
	return expansion, nil
}

func (s *Service) ListForProviderOnDate(ctx context.Context, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	return s.appts.ListForProviderOnDate(ctx, providerID, date)
}

func (s *Service) ListForProviderBetween(ctx context.Context, providerID uuid.UUID, from, to domain.Date) ([]domain.Appointment, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	if from.IsZero() || to.IsZero() {
		return nil, validationError("from and to dates are required")
	}
	if to.Before(from) {
		return nil, validationError("to must not be before from")
	}
	return s.appts.ListForProviderBetween(ctx, providerID, from, to)
}

func (s *Service) UpdateStatus(ctx context.Context, providerID, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	if providerID == uuid.Nil {
		return validationError("provider_id is required")
	}
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}
	if !status.Valid() {
		return validationError("invalid status")
	}
	return s.appts.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		return tx.UpdateAppointmentStatus(ctx, providerID, appointmentID, status)
	})
}

func (s *Service) Cancel(ctx context.Context, providerID, appointmentID uuid.UUID) error {
	return s.UpdateStatus(ctx, providerID, appointmentID, domain.AppointmentStatusCancelled)
}

func (s *Service) Delete(ctx context.Context, providerID, appointmentID uuid.UUID) error {
	if providerID == uuid.Nil {
		return validationError("provider_id is required")
	}
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}
	return s.appts.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		return tx.DeleteAppointment(ctx, providerID, appointmentID)
	})
}

func (s *Service) resolveAvailability(ctx context.Context, providerID uuid.UUID, date domain.Date) (domain.DayAvailability, error) {
	hours, err := s.providers.WorkingHours(ctx, providerID)
	if err != nil {
		return domain.DayAvailability{}, err
	}
	return domain.ResolveAvailability(hours, date)
}

func validateSlot(providerID uuid.UUID, date domain.Date, duration int) error {
	if providerID == uuid.Nil {
		return validationError("provider_id is required")
	}
	if date.IsZero() {
		return validationError("date is required")
	}
	if duration <= 0 {
		return validationError("duration_minutes must be positive")
	}
	return nil
}

func idempotentID(providerID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("clinicdesk:book_appointment:"+providerID.String()+":"+key))
}
