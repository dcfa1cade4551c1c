package db

import (
	"context"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the auditoriums and bookings tables from the models.
// Production schemas come from the SQL migrations; this serves tests and
// throwaway local databases.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*models.Auditorium)(nil), (*models.Booking)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		columns []string
	}{
		{"idx_bookings_auditorium_status", []string{"auditorium_id", "status"}},
		{"idx_bookings_status_payment_due", []string{"status", "payment_due"}},
		{"idx_bookings_status_created_at", []string{"status", "created_at"}},
		{"idx_bookings_user_id", []string{"user_id"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model((*models.Booking)(nil)).
			Index(idx.name).
			IfNotExists().
			Column(idx.columns...).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
