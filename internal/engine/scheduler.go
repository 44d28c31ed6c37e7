package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

const schedulerInterval = time.Second

// Scheduler materializes due recurring schedules into queued backup
// records. Firing is never blocked by pool capacity: record creation and
// bot admission are separate stages.
type Scheduler struct {
	logger    zerolog.Logger
	stores    Stores
	backupDir string
	now       func() time.Time
}

func NewScheduler(logger zerolog.Logger, stores Stores, backupDir string) *Scheduler {
	return &Scheduler{
		logger:    logger.With().Str("component", "backup-scheduler").Logger(),
		stores:    stores,
		backupDir: backupDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	return runLoop(ctx, s.logger, schedulerInterval, s.Pass)
}

// Pass fires every due schedule, oldest-due first, and batch-deletes the
// schedules whose database or group no longer exists.
func (s *Scheduler) Pass(ctx context.Context) error {
	due, err := s.stores.Schedules.ListDue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	var orphans []int64
	for i := range due {
		sched := &due[i]
		orphaned, err := s.fire(ctx, sched)
		if err != nil {
			s.logger.Error().Err(err).Int64("schedule", sched.ID).Msg("schedule firing failed")
			continue
		}
		if orphaned {
			orphans = append(orphans, sched.ID)
		}
	}

	if len(orphans) > 0 {
		s.logger.Info().Ints64("schedules", orphans).Msg("removing orphaned schedules")
		if err := s.stores.Schedules.RemoveBatch(ctx, orphans); err != nil {
			s.logger.Error().Err(err).Msg("remove orphaned schedules failed")
		}
	}

	return nil
}

// fire creates one queued backup record for the schedule and advances its
// next-run time. It reports orphaned=true when the schedule references a
// deleted database or group.
func (s *Scheduler) fire(ctx context.Context, sched *model.BackupSchedule) (bool, error) {
	db, err := s.stores.Databases.GetByID(ctx, sched.DatabaseID)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve database %s: %w", sched.DatabaseID, err)
	}

	group, err := s.stores.Groups.GetByID(ctx, db.GroupID)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve group %s: %w", db.GroupID, err)
	}

	now := s.now()
	expires := now.AddDate(0, 0, group.RetentionDays)
	record := &model.BackupRecord{
		DatabaseID:      db.ID,
		GroupID:         group.ID,
		Status:          model.StatusQueued,
		RestoreStatus:   model.RestoreNone,
		Path:            dumpPath(s.backupDir, group, db, now),
		RegisteredAt:    now,
		StatusUpdatedAt: now,
		ExpiresAt:       &expires,
	}
	if err := s.stores.Records.Create(ctx, record); err != nil {
		return false, fmt.Errorf("create backup record: %w", err)
	}

	s.logger.Info().
		Int64("schedule", sched.ID).
		Int64("record", record.ID).
		Str("database", db.Name).
		Str("group", group.ID).
		Msg("schedule fired")

	if err := s.stores.Schedules.MarkFired(ctx, sched.ID, now, sched.Advance(now)); err != nil {
		// The record exists; a stale next-run only means an extra firing,
		// which the queue tolerates.
		s.logger.Error().Err(err).Int64("schedule", sched.ID).Msg("advance schedule failed")
	}

	return false, nil
}

// dumpPath computes the on-disk location for a new dump, one directory per
// resource group.
func dumpPath(backupDir string, group *model.ResourceGroup, db *model.Database, ts time.Time) string {
	ext := ".sql"
	if group.Engine == model.EngineSQLServer {
		ext = ".bak"
	}
	name := fmt.Sprintf("%s-%s%s", db.Name, ts.Format("20060102-150405"), ext)
	return filepath.Join(backupDir, group.ID, name)
}
