package store

import (
	"context"

	"github.com/google/uuid"

	"clinicdesk/backend/internal/domain"
)

// AppointmentRepository is the booked-appointment collaborator of the rule
// engine. Writes go through InProviderTransaction so a provider's calendar
// is checked and mutated under one lock.
type AppointmentRepository interface {
	InProviderTransaction(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx CalendarTx) error) error

	ListForProviderOnDate(ctx context.Context, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error)
	ListForProviderBetween(ctx context.Context, providerID uuid.UUID, from, to domain.Date) ([]domain.Appointment, error)
}

// CalendarTx is the per-provider calendar view inside a repository
// transaction.
type CalendarTx interface {
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	ListAppointmentsOnDate(ctx context.Context, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, providerID, appointmentID uuid.UUID, status domain.AppointmentStatus) error
	DeleteAppointment(ctx context.Context, providerID, appointmentID uuid.UUID) error
}

// ProviderDirectory hands out provider records and their weekly
// working-hours tables.
type ProviderDirectory interface {
	CreateProvider(ctx context.Context, p domain.Provider) (domain.Provider, error)
	GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error)
	WorkingHours(ctx context.Context, providerID uuid.UUID) (domain.WeeklyWorkingHours, error)
	SaveWorkingHours(ctx context.Context, providerID uuid.UUID, hours domain.WeeklyWorkingHours) error
}
