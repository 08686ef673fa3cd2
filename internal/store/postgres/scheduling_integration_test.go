package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinicdesk/backend/internal/domain"
	"clinicdesk/backend/internal/store"
)

func TestPostgresIntegration_CalendarCreateListAndIdempotency(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("CLINICDESK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINICDESK_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "clinicdesk_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema).Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		provider := domain.Provider{
			ID:   uuid.MustParse("00000000-0000-0000-0000-000000000901"),
			Name: "Dr. Achebe",
		}
		if _, err := tx.NewInsert().Model(&provider).Exec(ctx); err != nil {
			return err
		}

		c := calendarTx{tx: tx}
		day := domain.NewDate(2026, time.January, 5)

		a1, err := c.CreateAppointment(ctx, domain.Appointment{
			ID:          uuid.MustParse("00000000-0000-0000-0000-000000000911"),
			ProviderID:  provider.ID,
			PatientID:   uuid.MustParse("00000000-0000-0000-0000-000000000921"),
			Reason:      "checkup",
			Date:        day.Time(),
			StartMinute: 10 * 60,
			EndMinute:   10*60 + 30,
			Status:      domain.AppointmentStatusScheduled,
		})
		if err != nil {
			return err
		}

		a2, err := c.CreateAppointment(ctx, domain.Appointment{
			ProviderID:  provider.ID,
			PatientID:   uuid.MustParse("00000000-0000-0000-0000-000000000922"),
			Reason:      "followup",
			Date:        day.Time(),
			StartMinute: 9 * 60,
			EndMinute:   9*60 + 30,
			Status:      domain.AppointmentStatusScheduled,
		})
		if err != nil {
			return err
		}
		if a2.ID == uuid.Nil {
			return fmt.Errorf("expected generated id")
		}

		rows, err := c.ListAppointmentsOnDate(ctx, provider.ID, day)
		if err != nil {
			return err
		}
		if len(rows) != 2 {
			return fmt.Errorf("len(rows) = %d, want 2", len(rows))
		}
		if rows[0].ID != a2.ID || rows[1].ID != a1.ID {
			return fmt.Errorf("rows not ordered by start_minute")
		}

		// Retrying the same row is an idempotent no-op.
		again, err := c.CreateAppointment(ctx, domain.Appointment{
			ID:          a1.ID,
			ProviderID:  a1.ProviderID,
			PatientID:   a1.PatientID,
			Reason:      "checkup",
			Date:        day.Time(),
			StartMinute: a1.StartMinute,
			EndMinute:   a1.EndMinute,
			Status:      domain.AppointmentStatusScheduled,
		})
		if err != nil {
			return err
		}
		if again.ID != a1.ID {
			return fmt.Errorf("retry id = %s, want %s", again.ID, a1.ID)
		}

		// Reusing the id for a different slot is refused.
		_, err = c.CreateAppointment(ctx, domain.Appointment{
			ID:          a1.ID,
			ProviderID:  a1.ProviderID,
			PatientID:   a1.PatientID,
			Reason:      "checkup",
			Date:        day.Time(),
			StartMinute: 14 * 60,
			EndMinute:   14*60 + 30,
			Status:      domain.AppointmentStatusScheduled,
		})
		if !errors.Is(err, store.ErrIdempotencyConflict) {
			return fmt.Errorf("idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
		}

		if err := c.UpdateAppointmentStatus(ctx, provider.ID, a1.ID, domain.AppointmentStatusCancelled); err != nil {
			return err
		}
		err = c.UpdateAppointmentStatus(ctx, provider.ID, uuid.New(), domain.AppointmentStatusCancelled)
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("update missing err = %v, want %v", err, store.ErrNotFound)
		}

		if err := c.DeleteAppointment(ctx, provider.ID, a2.ID); err != nil {
			return err
		}
		err = c.DeleteAppointment(ctx, provider.ID, a2.ID)
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete twice err = %v, want %v", err, store.ErrNotFound)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func TestPostgresIntegration_WorkingHoursSaveAndLoad(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("CLINICDESK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINICDESK_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "clinicdesk_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	providers := NewProviderRepo(db)
	p, err := providers.CreateProvider(ctx, domain.Provider{Name: "Dr. Achebe", Specialty: "physio"})
	if err != nil {
		t.Fatalf("CreateProvider error: %v", err)
	}

	if _, err := providers.WorkingHours(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("WorkingHours before save err = %v, want %v", err, store.ErrNotFound)
	}

	hours := domain.WeeklyWorkingHours{
		time.Monday:  {Start: 8 * 60, End: 17 * 60, Available: true},
		time.Tuesday: {Start: 8 * 60, End: 12 * 60, Available: true},
		time.Sunday:  {Available: false},
	}
	if err := providers.SaveWorkingHours(ctx, p.ID, hours); err != nil {
		t.Fatalf("SaveWorkingHours error: %v", err)
	}

	got, err := providers.WorkingHours(ctx, p.ID)
	if err != nil {
		t.Fatalf("WorkingHours error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if got[time.Monday] != hours[time.Monday] {
		t.Fatalf("monday = %+v, want %+v", got[time.Monday], hours[time.Monday])
	}

	// A second save replaces the whole table.
	if err := providers.SaveWorkingHours(ctx, p.ID, domain.WeeklyWorkingHours{
		time.Friday: {Start: 9 * 60, End: 13 * 60, Available: true},
	}); err != nil {
		t.Fatalf("SaveWorkingHours error: %v", err)
	}
	got, err = providers.WorkingHours(ctx, p.ID)
	if err != nil {
		t.Fatalf("WorkingHours error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 after replace", len(got))
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
