package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/driver"
	"github.com/edvin/backhaul/internal/model"
)

const backupDispatchInterval = time.Second

// BackupDispatcher promotes queued backup records into running backup
// bots, subject to the owning group's concurrency budget. Records that
// cannot be admitted this pass stay queued and are retried on the next
// one, so starvation under a full pool resolves itself as slots free up.
type BackupDispatcher struct {
	logger  zerolog.Logger
	stores  Stores
	pool    *Pool
	metrics *Metrics
	now     func() time.Time
}

func NewBackupDispatcher(logger zerolog.Logger, stores Stores, pool *Pool, metrics *Metrics) *BackupDispatcher {
	return &BackupDispatcher{
		logger:  logger.With().Str("component", "backup-dispatcher").Logger(),
		stores:  stores,
		pool:    pool,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *BackupDispatcher) Run(ctx context.Context) error {
	return runLoop(ctx, d.logger, backupDispatchInterval, d.Pass)
}

// Pass walks the queued records oldest-first and admits one bot per
// record that has a free slot. Each record is an isolated failure
// boundary; one bad record never blocks the rest of the queue.
func (d *BackupDispatcher) Pass(ctx context.Context) error {
	queued, err := d.stores.Records.ListByStatus(ctx, model.StatusQueued)
	if err != nil {
		return fmt.Errorf("list queued records: %w", err)
	}

	for i := range queued {
		record := &queued[i]
		if err := d.dispatch(ctx, record); err != nil {
			d.logger.Error().Err(err).Int64("record", record.ID).Msg("dispatch failed")
			d.metrics.DispatchTotal.WithLabelValues("backup", "error").Inc()
			continue
		}
		d.metrics.DispatchTotal.WithLabelValues("backup", "ok").Inc()
	}

	return nil
}

func (d *BackupDispatcher) dispatch(ctx context.Context, record *model.BackupRecord) error {
	db, err := d.stores.Databases.GetByID(ctx, record.DatabaseID)
	if errors.Is(err, ErrNotFound) {
		return d.removeOrphan(ctx, record, "database deleted")
	}
	if err != nil {
		return fmt.Errorf("resolve database %s: %w", record.DatabaseID, err)
	}

	group, err := d.stores.Groups.GetByID(ctx, record.GroupID)
	if errors.Is(err, ErrNotFound) {
		return d.removeOrphan(ctx, record, "group deleted")
	}
	if err != nil {
		return fmt.Errorf("resolve group %s: %w", record.GroupID, err)
	}

	if !d.pool.HasFreeSlot(group.ID, group.MaxConcurrentBots) {
		// Stays queued; retried next pass.
		return nil
	}

	drv, err := driver.ForEngine(group.Engine, d.logger)
	if err != nil {
		// An unknown engine tag cannot succeed on a retry. Surface the
		// message, then drop the record.
		if feedErr := d.stores.Records.UpdateStatusFeed(ctx, record.ID, model.StatusError, err.Error(), 0); feedErr != nil {
			return feedErr
		}
		return d.stores.Records.Remove(ctx, record.ID)
	}

	recordID := record.ID
	dbName := db.Name
	destPath := record.Path
	started := d.now()
	bot := NewBot(group.ID, backupKey(recordID), func(ctx context.Context) error {
		// Probe before dumping so an unreachable server fails with a
		// readable message instead of a tool-specific one.
		if err := drv.TestConnectivity(ctx, group); err != nil {
			d.feedRecord(ctx, recordID, model.StatusError, err.Error(), started)
			return err
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
			d.feedRecord(ctx, recordID, model.StatusError, err.Error(), started)
			return err
		}
		if err := drv.Backup(ctx, dbName, group, destPath); err != nil {
			d.feedRecord(ctx, recordID, model.StatusError, err.Error(), started)
			return err
		}
		d.feedRecord(ctx, recordID, model.StatusCompleted, "", started)
		return nil
	})
	d.pool.Add(bot)

	if err := d.stores.Records.UpdateStatusFeed(ctx, record.ID, model.StatusExecuting, "", 0); err != nil {
		// The bot is admitted either way; the watchdog covers a record
		// stuck in a stale state.
		d.logger.Error().Err(err).Int64("record", record.ID).Msg("mark executing failed")
	}

	d.logger.Info().Int64("record", record.ID).Str("database", db.Name).Str("group", group.ID).Msg("backup admitted")
	return nil
}

// feedRecord reports a bot outcome back to the record, with elapsed time.
// Feed failures are logged only: the bot result must not be lost to a
// transient store error mid-payload.
func (d *BackupDispatcher) feedRecord(ctx context.Context, recordID int64, status, message string, started time.Time) {
	if err := d.stores.Records.UpdateStatusFeed(ctx, recordID, status, message, d.now().Sub(started)); err != nil {
		d.logger.Error().Err(err).Int64("record", recordID).Str("status", status).Msg("status feed failed")
	}
}

// removeOrphan deletes a record whose owning database or group is gone,
// along with any dump already on disk.
func (d *BackupDispatcher) removeOrphan(ctx context.Context, record *model.BackupRecord, reason string) error {
	d.logger.Info().Int64("record", record.ID).Str("reason", reason).Msg("removing orphaned record")
	if record.Path != "" {
		if err := os.Remove(record.Path); err != nil && !os.IsNotExist(err) {
			d.logger.Warn().Err(err).Str("path", record.Path).Msg("orphan file removal failed")
		}
	}
	if err := d.stores.Records.Remove(ctx, record.ID); err != nil {
		return fmt.Errorf("remove orphaned record %d: %w", record.ID, err)
	}
	return nil
}
