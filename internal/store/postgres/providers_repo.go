package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinicdesk/backend/internal/domain"
	"clinicdesk/backend/internal/store"
)

type ProviderRepo struct {
	db *bun.DB
}

func NewProviderRepo(db *bun.DB) *ProviderRepo {
	return &ProviderRepo{db: db}
}

func (r *ProviderRepo) CreateProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	m := domain.Provider{
		ID:        p.ID,
		Name:      p.Name,
		Specialty: p.Specialty,
	}
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.Provider{}, err
	}
	return m, nil
}

func (r *ProviderRepo) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	var p domain.Provider
	err := r.db.NewSelect().
		Model(&p).
		Where("id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Provider{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Provider{}, err
	}
	return p, nil
}

func (r *ProviderRepo) WorkingHours(ctx context.Context, providerID uuid.UUID) (domain.WeeklyWorkingHours, error) {
	var rows []domain.WorkingHoursEntry
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		OrderExpr("weekday ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return weeklyHoursFromRows(rows)
}

// SaveWorkingHours replaces the provider's whole table: one row per weekday
// present in hours.
func (r *ProviderRepo) SaveWorkingHours(ctx context.Context, providerID uuid.UUID, hours domain.WeeklyWorkingHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}

	rows := rowsFromWeeklyHours(providerID, hours)

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*domain.WorkingHoursEntry)(nil)).
			Where("provider_id = ?", providerID).
			Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func weeklyHoursFromRows(rows []domain.WorkingHoursEntry) (domain.WeeklyWorkingHours, error) {
	out := make(domain.WeeklyWorkingHours, len(rows))
	for _, row := range rows {
		wd, err := domain.WeekdayFromISO(row.Weekday)
		if err != nil {
			return nil, err
		}
		out[wd] = domain.DayHours{
			Start:     domain.TimeOfDay(row.StartMinute),
			End:       domain.TimeOfDay(row.EndMinute),
			Available: row.Available,
		}
	}
	return out, nil
}

func rowsFromWeeklyHours(providerID uuid.UUID, hours domain.WeeklyWorkingHours) []domain.WorkingHoursEntry {
	rows := make([]domain.WorkingHoursEntry, 0, len(hours))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		dh, ok := hours[wd]
		if !ok {
			continue
		}
		rows = append(rows, domain.WorkingHoursEntry{
			ProviderID:  providerID,
			Weekday:     domain.ISOWeekday(wd),
			StartMinute: int(dh.Start),
			EndMinute:   int(dh.End),
			Available:   dh.Available,
		})
	}
	return rows
}
