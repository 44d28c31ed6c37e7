package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/driver"
	"github.com/edvin/backhaul/internal/model"
)

const restoreDispatchInterval = time.Second

// RestoreDispatcher serves operator-requested restores. A record flagged
// pending_restore gets a bot that decompresses the archive if needed and
// replays the dump into the origin database. Restores ride the same pool
// and budget as backups, so a restore storm cannot starve backup work
// beyond the group's own allowance.
type RestoreDispatcher struct {
	logger  zerolog.Logger
	stores  Stores
	pool    *Pool
	metrics *Metrics
}

func NewRestoreDispatcher(logger zerolog.Logger, stores Stores, pool *Pool, metrics *Metrics) *RestoreDispatcher {
	return &RestoreDispatcher{
		logger:  logger.With().Str("component", "restore-dispatcher").Logger(),
		stores:  stores,
		pool:    pool,
		metrics: metrics,
	}
}

func (d *RestoreDispatcher) Run(ctx context.Context) error {
	return runLoop(ctx, d.logger, restoreDispatchInterval, d.Pass)
}

func (d *RestoreDispatcher) Pass(ctx context.Context) error {
	pending, err := d.stores.Records.ListByRestoreStatus(ctx, model.RestorePending)
	if err != nil {
		return fmt.Errorf("list pending restores: %w", err)
	}

	for i := range pending {
		record := &pending[i]
		if err := d.dispatch(ctx, record); err != nil {
			d.logger.Error().Err(err).Int64("record", record.ID).Msg("dispatch failed")
			d.metrics.DispatchTotal.WithLabelValues("restore", "error").Inc()
			continue
		}
		d.metrics.DispatchTotal.WithLabelValues("restore", "ok").Inc()
	}

	return nil
}

func (d *RestoreDispatcher) dispatch(ctx context.Context, record *model.BackupRecord) error {
	if record.Status != model.StatusReady && record.Status != model.StatusCompleted {
		return d.stores.Records.UpdateRestoreStatus(ctx, record.ID, model.RestoreFailed,
			fmt.Sprintf("backup not restorable in status %q", record.Status))
	}

	db, err := d.stores.Databases.GetByID(ctx, record.DatabaseID)
	if errors.Is(err, ErrNotFound) {
		return d.stores.Records.UpdateRestoreStatus(ctx, record.ID, model.RestoreFailed, "database deleted")
	}
	if err != nil {
		return fmt.Errorf("resolve database %s: %w", record.DatabaseID, err)
	}

	group, err := d.stores.Groups.GetByID(ctx, record.GroupID)
	if errors.Is(err, ErrNotFound) {
		return d.stores.Records.UpdateRestoreStatus(ctx, record.ID, model.RestoreFailed, "group deleted")
	}
	if err != nil {
		return fmt.Errorf("resolve group %s: %w", record.GroupID, err)
	}

	if !d.pool.HasFreeSlot(group.ID, group.MaxConcurrentBots) {
		return nil
	}

	drv, err := driver.ForEngine(group.Engine, d.logger)
	if err != nil {
		return d.stores.Records.UpdateRestoreStatus(ctx, record.ID, model.RestoreFailed, err.Error())
	}

	recordID := record.ID
	dbName := db.Name
	srcPath := record.Path
	bot := NewBot(group.ID, restoreKey(recordID), func(ctx context.Context) error {
		if err := d.restore(ctx, drv, dbName, group, srcPath); err != nil {
			d.feedRestore(ctx, recordID, model.RestoreFailed, err.Error())
			return err
		}
		d.feedRestore(ctx, recordID, model.RestoreCompleted, "")
		return nil
	})
	d.pool.Add(bot)

	if err := d.stores.Records.UpdateRestoreStatus(ctx, record.ID, model.RestoreExecuting, ""); err != nil {
		d.logger.Error().Err(err).Int64("record", record.ID).Msg("mark executing_restore failed")
	}

	d.logger.Info().Int64("record", record.ID).Str("database", db.Name).Str("group", group.ID).Msg("restore admitted")
	return nil
}

// restore replays the dump at srcPath, decompressing to a sibling file
// first when the dump is archived. The decompressed copy is temporary and
// removed afterwards; the archive on disk is left untouched.
func (d *RestoreDispatcher) restore(ctx context.Context, drv driver.Driver, dbName string, group *model.ResourceGroup, srcPath string) error {
	dumpPath := srcPath
	if strings.HasSuffix(srcPath, archive.Ext) {
		dumpPath = strings.TrimSuffix(srcPath, archive.Ext)
		if err := archive.Decompress(srcPath, dumpPath); err != nil {
			return fmt.Errorf("decompress archive: %w", err)
		}
		defer func() {
			if err := os.Remove(dumpPath); err != nil && !os.IsNotExist(err) {
				d.logger.Warn().Err(err).Str("path", dumpPath).Msg("temporary dump removal failed")
			}
		}()
	}
	return drv.Restore(ctx, dbName, group, dumpPath)
}

func (d *RestoreDispatcher) feedRestore(ctx context.Context, recordID int64, restoreStatus, message string) {
	if err := d.stores.Records.UpdateRestoreStatus(ctx, recordID, restoreStatus, message); err != nil {
		d.logger.Error().Err(err).Int64("record", recordID).Str("restore_status", restoreStatus).Msg("restore feed failed")
	}
}

// restoreKey identifies the bot restoring a backup record. It is distinct
// from the backup key so the watchdog can terminate one without touching
// the other.
func restoreKey(recordID int64) string {
	return fmt.Sprintf("restore/%d", recordID)
}
