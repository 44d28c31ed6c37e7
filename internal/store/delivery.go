package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/model"
)

const deliveryColumns = `id, record_id, channel, status, message, duration_ms, registered_at, status_updated_at`

type DeliveryStore struct {
	db DB

	// Notify, when set, is called after every successful status write.
	Notify Notifier
}

func NewDeliveryStore(db DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

func (s *DeliveryStore) changed(id string) {
	if s.Notify != nil {
		go s.Notify("backup_deliveries", id)
	}
}

func (s *DeliveryStore) ListByStatus(ctx context.Context, status string) ([]model.BackupRecordDelivery, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+deliveryColumns+` FROM backup_deliveries WHERE status = $1 ORDER BY registered_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by status %s: %w", status, err)
	}
	return collectDeliveries(rows)
}

func (s *DeliveryStore) ListByRecord(ctx context.Context, recordID int64) ([]model.BackupRecordDelivery, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+deliveryColumns+` FROM backup_deliveries WHERE record_id = $1 ORDER BY registered_at`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries for record %d: %w", recordID, err)
	}
	return collectDeliveries(rows)
}

func (s *DeliveryStore) ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx,
		`SELECT id FROM backup_deliveries WHERE status = ANY($1) AND status_updated_at < $2`,
		statuses, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list non-responsive deliveries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan delivery id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery ids: %w", err)
	}
	return ids, nil
}

// Upsert inserts the delivery if its identity is new and leaves an
// existing row untouched. A repeated fan-out therefore cannot rewind a
// delivery that has already moved past queued.
func (s *DeliveryStore) Upsert(ctx context.Context, delivery *model.BackupRecordDelivery) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_deliveries (id, record_id, channel, status, registered_at, status_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		delivery.ID, delivery.RecordID, delivery.Channel, delivery.Status,
		delivery.RegisteredAt, delivery.StatusUpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert delivery %s: %w", delivery.ID, err)
	}
	s.changed(delivery.ID)
	return nil
}

func (s *DeliveryStore) UpdateStatusFeed(ctx context.Context, id string, status, message string, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_deliveries SET status = $1, message = NULLIF($2, ''), duration_ms = $3, status_updated_at = now() WHERE id = $4`,
		status, message, elapsed.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("update delivery %s status: %w", id, err)
	}
	s.changed(id)
	return nil
}

func (s *DeliveryStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM backup_deliveries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery %s: %w", id, err)
	}
	return nil
}

func collectDeliveries(rows pgx.Rows) ([]model.BackupRecordDelivery, error) {
	defer rows.Close()

	var deliveries []model.BackupRecordDelivery
	for rows.Next() {
		var d model.BackupRecordDelivery
		if err := rows.Scan(&d.ID, &d.RecordID, &d.Channel, &d.Status,
			&d.Message, &d.DurationMS, &d.RegisteredAt, &d.StatusUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}
