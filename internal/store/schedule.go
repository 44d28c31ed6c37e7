package store

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/backhaul/internal/model"
)

type ScheduleStore struct {
	db DB
}

func NewScheduleStore(db DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) ListDue(ctx context.Context, now time.Time) ([]model.BackupSchedule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, database_id, interval_hours, last_run_at, next_run_at, created_at
		 FROM backup_schedules WHERE next_run_at <= $1 ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.BackupSchedule
	for rows.Next() {
		var sc model.BackupSchedule
		if err := rows.Scan(&sc.ID, &sc.DatabaseID, &sc.IntervalHours,
			&sc.LastRunAt, &sc.NextRunAt, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

func (s *ScheduleStore) MarkFired(ctx context.Context, id int64, lastRun, nextRun time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_schedules SET last_run_at = $1, next_run_at = $2 WHERE id = $3`,
		lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("mark schedule %d fired: %w", id, err)
	}
	return nil
}

func (s *ScheduleStore) RemoveBatch(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM backup_schedules WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete schedules: %w", err)
	}
	return nil
}
