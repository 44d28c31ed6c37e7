package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/model"
)

const compressionDispatchInterval = time.Second

// CompressionDispatcher picks up completed backups and either compresses
// them through a bot or, for groups with compression off, marks them
// ready directly.
type CompressionDispatcher struct {
	logger  zerolog.Logger
	stores  Stores
	pool    *Pool
	metrics *Metrics
	now     func() time.Time
}

func NewCompressionDispatcher(logger zerolog.Logger, stores Stores, pool *Pool, metrics *Metrics) *CompressionDispatcher {
	return &CompressionDispatcher{
		logger:  logger.With().Str("component", "compression-dispatcher").Logger(),
		stores:  stores,
		pool:    pool,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *CompressionDispatcher) Run(ctx context.Context) error {
	return runLoop(ctx, d.logger, compressionDispatchInterval, d.Pass)
}

func (d *CompressionDispatcher) Pass(ctx context.Context) error {
	completed, err := d.stores.Records.ListByStatus(ctx, model.StatusCompleted)
	if err != nil {
		return fmt.Errorf("list completed records: %w", err)
	}

	for i := range completed {
		record := &completed[i]
		if err := d.dispatch(ctx, record); err != nil {
			d.logger.Error().Err(err).Int64("record", record.ID).Msg("dispatch failed")
			d.metrics.DispatchTotal.WithLabelValues("compression", "error").Inc()
			continue
		}
		d.metrics.DispatchTotal.WithLabelValues("compression", "ok").Inc()
	}

	return nil
}

func (d *CompressionDispatcher) dispatch(ctx context.Context, record *model.BackupRecord) error {
	group, err := d.stores.Groups.GetByID(ctx, record.GroupID)
	if errors.Is(err, ErrNotFound) {
		// The expiry sweeper owns cleanup; here the record just parks
		// until an operator or the sweeper deals with it.
		return d.stores.Records.UpdateStatusFeed(ctx, record.ID, model.StatusError, "group deleted", 0)
	}
	if err != nil {
		return fmt.Errorf("resolve group %s: %w", record.GroupID, err)
	}

	if !group.CompressionEnabled {
		return d.stores.Records.UpdateStatusFeed(ctx, record.ID, model.StatusReady, "", 0)
	}

	if !d.pool.HasFreeSlot(group.ID, group.MaxConcurrentBots) {
		return nil
	}

	recordID := record.ID
	srcPath := record.Path
	started := d.now()
	bot := NewBot(group.ID, backupKey(recordID), func(ctx context.Context) error {
		archived, err := archive.Compress(srcPath)
		if err != nil {
			d.feedRecord(ctx, recordID, model.StatusError, err.Error(), started)
			return err
		}
		if err := d.stores.Records.SetPath(ctx, recordID, archived); err != nil {
			d.feedRecord(ctx, recordID, model.StatusError, err.Error(), started)
			return err
		}
		d.feedRecord(ctx, recordID, model.StatusReady, "", started)
		return nil
	})
	d.pool.Add(bot)

	if err := d.stores.Records.UpdateStatusFeed(ctx, record.ID, model.StatusCompressing, "", 0); err != nil {
		d.logger.Error().Err(err).Int64("record", record.ID).Msg("mark compressing failed")
	}

	d.logger.Info().Int64("record", record.ID).Str("group", group.ID).Msg("compression admitted")
	return nil
}

func (d *CompressionDispatcher) feedRecord(ctx context.Context, recordID int64, status, message string, started time.Time) {
	if err := d.stores.Records.UpdateStatusFeed(ctx, recordID, status, message, d.now().Sub(started)); err != nil {
		d.logger.Error().Err(err).Int64("record", recordID).Str("status", status).Msg("status feed failed")
	}
}
