package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Store reads auditoriums and their price lists from the database.
type Store struct {
	Bun *bun.DB
}

func NewStore(bunDB *bun.DB) *Store {
	return &Store{Bun: bunDB}
}

// GetAuditorium → one auditorium, models.ErrAuditoriumNotFound when absent
func (s *Store) GetAuditorium(ctx context.Context, id string) (*models.Auditorium, error) {
	var a models.Auditorium
	err := s.Bun.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrAuditoriumNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAuditoriums(ctx context.Context) ([]*models.Auditorium, error) {
	var list []*models.Auditorium
	err := s.Bun.NewSelect().
		Model(&list).
		Order("name ASC").
		Scan(ctx)
	return list, err
}

// SaveAuditorium inserts or replaces an auditorium's price list.
func (s *Store) SaveAuditorium(ctx context.Context, a *models.Auditorium) error {
	_, err := s.Bun.NewInsert().
		Model(a).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("price_per_hour = EXCLUDED.price_per_hour").
		Set("amenities = EXCLUDED.amenities").
		Exec(ctx)
	return err
}
