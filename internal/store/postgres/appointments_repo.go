package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinicdesk/backend/internal/domain"
	"clinicdesk/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type calendarTx struct {
	tx bun.Tx
}

// InProviderTransaction runs fn inside a transaction holding an advisory
// lock on the provider's calendar, serializing concurrent bookings for the
// same provider.
func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID.String()).Exec(ctx)
	return err
}

func (r *AppointmentRepo) ListForProviderOnDate(ctx context.Context, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error) {
	return listOnDate(ctx, r.db, providerID, date)
}

func (r *AppointmentRepo) ListForProviderBetween(ctx context.Context, providerID uuid.UUID, from, to domain.Date) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date >= ?", from.Time()).
		Where("date <= ?", to.Time()).
		OrderExpr("date ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:          appt.ID,
		ProviderID:  appt.ProviderID,
		PatientID:   appt.PatientID,
		Reason:      appt.Reason,
		Notes:       appt.Notes,
		Date:        appt.Date,
		StartMinute: appt.StartMinute,
		EndMinute:   appt.EndMinute,
		Status:      appt.Status,
		CreatedAt:   appt.CreatedAt,
		UpdatedAt:   appt.UpdatedAt,
	}

	// DO NOTHING keeps a duplicate id from aborting the surrounding
	// transaction, so an idempotency-keyed retry can fall through to the
	// comparison below.
	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	// The id is already stored. Return the stored row when it matches the
	// request, refuse when the key was reused for different data.
	var existing domain.Appointment
	if err := r.tx.NewSelect().
		Model(&existing).
		Where("id = ?", m.ID).
		Limit(1).
		Scan(ctx); err != nil {
		return domain.Appointment{}, err
	}

	if existing.ProviderID != appt.ProviderID ||
		existing.PatientID != appt.PatientID ||
		!existing.Day().Equal(domain.DateOf(appt.Date)) ||
		existing.StartMinute != appt.StartMinute ||
		existing.EndMinute != appt.EndMinute {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}

	return existing, nil
}

func (r calendarTx) ListAppointmentsOnDate(ctx context.Context, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error) {
	return listOnDate(ctx, r.tx, providerID, date)
}

func (r calendarTx) UpdateAppointmentStatus(ctx context.Context, providerID, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	res, err := r.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = now()").
		Where("provider_id = ?", providerID).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r calendarTx) DeleteAppointment(ctx context.Context, providerID, appointmentID uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("provider_id = ?", providerID).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func listOnDate(ctx context.Context, db bun.IDB, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", date.Time()).
		OrderExpr("start_minute ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
