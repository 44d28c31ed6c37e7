package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/model"
)

type ResourceGroupStore struct {
	db DB
}

func NewResourceGroupStore(db DB) *ResourceGroupStore {
	return &ResourceGroupStore{db: db}
}

func (s *ResourceGroupStore) GetByID(ctx context.Context, id string) (*model.ResourceGroup, error) {
	var g model.ResourceGroup
	err := s.db.QueryRow(ctx,
		`SELECT id, name, engine, host, port, username, password, max_concurrent_bots, compression_enabled, retention_days, delivery, created_at, updated_at
		 FROM resource_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Engine, &g.Host, &g.Port, &g.Username, &g.Password,
		&g.MaxConcurrentBots, &g.CompressionEnabled, &g.RetentionDays, &g.Delivery,
		&g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resource group %s: %w", id, err)
	}
	return &g, nil
}
