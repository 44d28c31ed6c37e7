package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/model"
)

const recordColumns = `id, database_id, group_id, status, restore_status, path, message, duration_ms, delivery_run, delivery_outcome, registered_at, status_updated_at, expires_at`

type BackupRecordStore struct {
	db DB

	// Notify, when set, is called after every successful status write.
	Notify Notifier
}

func NewBackupRecordStore(db DB) *BackupRecordStore {
	return &BackupRecordStore{db: db}
}

func (s *BackupRecordStore) changed(id int64) {
	if s.Notify != nil {
		go s.Notify("backup_records", strconv.FormatInt(id, 10))
	}
}

func (s *BackupRecordStore) Create(ctx context.Context, record *model.BackupRecord) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO backup_records (database_id, group_id, status, restore_status, path, registered_at, status_updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		record.DatabaseID, record.GroupID, record.Status, record.RestoreStatus,
		record.Path, record.RegisteredAt, record.StatusUpdatedAt, record.ExpiresAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert backup record: %w", err)
	}
	return nil
}

func (s *BackupRecordStore) GetByID(ctx context.Context, id int64) (*model.BackupRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM backup_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backup record %d: %w", id, err)
	}
	return record, nil
}

func (s *BackupRecordStore) ListByStatus(ctx context.Context, status string) ([]model.BackupRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM backup_records WHERE status = $1 ORDER BY registered_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list backup records by status %s: %w", status, err)
	}
	return collectRecords(rows)
}

func (s *BackupRecordStore) ListByRestoreStatus(ctx context.Context, restoreStatus string) ([]model.BackupRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM backup_records WHERE restore_status = $1 ORDER BY registered_at`, restoreStatus)
	if err != nil {
		return nil, fmt.Errorf("list backup records by restore status %s: %w", restoreStatus, err)
	}
	return collectRecords(rows)
}

func (s *BackupRecordStore) ListReadyUndelivered(ctx context.Context) ([]model.BackupRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM backup_records WHERE status = $1 AND delivery_run = FALSE ORDER BY registered_at`,
		model.StatusReady)
	if err != nil {
		return nil, fmt.Errorf("list ready undelivered records: %w", err)
	}
	return collectRecords(rows)
}

func (s *BackupRecordStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.BackupRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM backup_records WHERE expires_at IS NOT NULL AND expires_at < $1 ORDER BY expires_at LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired records: %w", err)
	}
	return collectRecords(rows)
}

func (s *BackupRecordStore) ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx,
		`SELECT id FROM backup_records WHERE status = ANY($1) AND status_updated_at < $2`,
		statuses, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list non-responsive records: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record ids: %w", err)
	}
	return ids, nil
}

func (s *BackupRecordStore) ListNonResponsiveRestores(ctx context.Context, restoreStatuses []string, olderThan time.Duration) ([]int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx,
		`SELECT id FROM backup_records WHERE restore_status = ANY($1) AND status_updated_at < $2`,
		restoreStatuses, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list non-responsive restores: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record ids: %w", err)
	}
	return ids, nil
}

func (s *BackupRecordStore) UpdateStatusFeed(ctx context.Context, id int64, status, message string, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_records SET status = $1, message = NULLIF($2, ''), duration_ms = $3, status_updated_at = now() WHERE id = $4`,
		status, message, elapsed.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("update backup record %d status: %w", id, err)
	}
	s.changed(id)
	return nil
}

func (s *BackupRecordStore) UpdateRestoreStatus(ctx context.Context, id int64, restoreStatus, message string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_records SET restore_status = $1, message = NULLIF($2, ''), status_updated_at = now() WHERE id = $3`,
		restoreStatus, message, id)
	if err != nil {
		return fmt.Errorf("update backup record %d restore status: %w", id, err)
	}
	s.changed(id)
	return nil
}

func (s *BackupRecordStore) SetPath(ctx context.Context, id int64, path string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_records SET path = $1 WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("set backup record %d path: %w", id, err)
	}
	return nil
}

func (s *BackupRecordStore) MarkDeliveryRun(ctx context.Context, id int64, outcome string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_records SET delivery_run = TRUE, delivery_outcome = $1 WHERE id = $2`, outcome, id)
	if err != nil {
		return fmt.Errorf("mark backup record %d delivery run: %w", id, err)
	}
	return nil
}

func (s *BackupRecordStore) Remove(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM backup_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backup record %d: %w", id, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*model.BackupRecord, error) {
	var r model.BackupRecord
	err := row.Scan(&r.ID, &r.DatabaseID, &r.GroupID, &r.Status, &r.RestoreStatus,
		&r.Path, &r.Message, &r.DurationMS, &r.DeliveryRun, &r.DeliveryOutcome,
		&r.RegisteredAt, &r.StatusUpdatedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]model.BackupRecord, error) {
	defer rows.Close()

	var records []model.BackupRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup records: %w", err)
	}
	return records, nil
}
