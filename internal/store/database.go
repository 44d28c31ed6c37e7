package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/model"
)

type DatabaseStore struct {
	db DB
}

func NewDatabaseStore(db DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) GetByID(ctx context.Context, id string) (*model.Database, error) {
	var d model.Database
	err := s.db.QueryRow(ctx,
		`SELECT id, group_id, name, created_at FROM databases WHERE id = $1`, id,
	).Scan(&d.ID, &d.GroupID, &d.Name, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get database %s: %w", id, err)
	}
	return &d, nil
}
