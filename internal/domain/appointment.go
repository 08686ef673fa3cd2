package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no-show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed,
		AppointmentStatusCompleted, AppointmentStatusCancelled,
		AppointmentStatusNoShow:
		return true
	}
	return false
}

// OccupiesCalendar reports whether an appointment in this status still holds
// its slot for conflict purposes. Cancelled and no-show slots are free again.
func (s AppointmentStatus) OccupiesCalendar() bool {
	return s != AppointmentStatusCancelled && s != AppointmentStatusNoShow
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID          uuid.UUID         `bun:"id,pk,type:uuid"`
	ProviderID  uuid.UUID         `bun:"provider_id,notnull,type:uuid"`
	PatientID   uuid.UUID         `bun:"patient_id,notnull,type:uuid"`
	Reason      string            `bun:"reason,notnull"`
	Notes       string            `bun:"notes"`
	Date        time.Time         `bun:"date,notnull,type:date"`
	StartMinute int               `bun:"start_minute,notnull"`
	EndMinute   int               `bun:"end_minute,notnull"`
	Status      AppointmentStatus `bun:"status,notnull"`
	CreatedAt   time.Time         `bun:"created_at,notnull"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) Day() Date {
	return DateOf(a.Date)
}

func (a *Appointment) Start() TimeOfDay {
	return TimeOfDay(a.StartMinute)
}

func (a *Appointment) End() TimeOfDay {
	return TimeOfDay(a.EndMinute)
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = AppointmentStatusScheduled
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
