package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/backhaul/internal/driver"
	"github.com/edvin/backhaul/internal/model"
)

// Options configures the engine's tunables. Zero values fall back to
// safe defaults.
type Options struct {
	BackupDir       string
	WatchdogTimeout time.Duration
	ExpiryBatchSize int
	InDepthDelete   bool
}

// Engine owns the bot pool and every background loop: scheduler,
// dispatchers, fan-out, watchdog, and expiry sweeper. One Engine per
// process; all loops share the pool and the stores.
type Engine struct {
	logger zerolog.Logger
	stores Stores
	pool   *Pool

	scheduler   *Scheduler
	backups     *BackupDispatcher
	compression *CompressionDispatcher
	fanout      *FanoutScheduler
	deliveries  *DeliveryDispatcher
	restores    *RestoreDispatcher
	watchdog    *Watchdog
	sweeper     *ExpirySweeper
}

func New(logger zerolog.Logger, stores Stores, reg prometheus.Registerer, opts Options) *Engine {
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = 10 * time.Minute
	}
	if opts.ExpiryBatchSize <= 0 {
		opts.ExpiryBatchSize = 50
	}

	metrics := NewMetrics(reg)
	pool := NewPool(logger, metrics)

	return &Engine{
		logger:      logger.With().Str("component", "engine").Logger(),
		stores:      stores,
		pool:        pool,
		scheduler:   NewScheduler(logger, stores, opts.BackupDir),
		backups:     NewBackupDispatcher(logger, stores, pool, metrics),
		compression: NewCompressionDispatcher(logger, stores, pool, metrics),
		fanout:      NewFanoutScheduler(logger, stores, metrics),
		deliveries:  NewDeliveryDispatcher(logger, stores, pool, metrics),
		restores:    NewRestoreDispatcher(logger, stores, pool, metrics),
		watchdog:    NewWatchdog(logger, stores, pool, opts.WatchdogTimeout),
		sweeper:     NewExpirySweeper(logger, stores, pool, opts.ExpiryBatchSize, opts.InDepthDelete),
	}
}

// Run starts every loop and blocks until the context is cancelled. The
// loops swallow pass errors themselves, so Run returning non-nil means a
// loop goroutine died outright.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("engine starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pool.Run(ctx) })
	g.Go(func() error { return e.scheduler.Run(ctx) })
	g.Go(func() error { return e.backups.Run(ctx) })
	g.Go(func() error { return e.compression.Run(ctx) })
	g.Go(func() error { return e.fanout.Run(ctx) })
	g.Go(func() error { return e.deliveries.Run(ctx) })
	g.Go(func() error { return e.restores.Run(ctx) })
	g.Go(func() error { return e.watchdog.Run(ctx) })
	g.Go(func() error { return e.sweeper.Run(ctx) })

	err := g.Wait()
	e.logger.Info().Msg("engine stopped")
	return err
}

// Requeue puts an errored backup record back in the queue for another
// attempt. Only errored records are eligible; anything else is either in
// flight or already done.
func (e *Engine) Requeue(ctx context.Context, recordID int64) error {
	record, err := e.stores.Records.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("resolve record %d: %w", recordID, err)
	}
	if record.Status != model.StatusError {
		return fmt.Errorf("record %d is %q, only errored records can be requeued", recordID, record.Status)
	}
	if err := e.stores.Records.UpdateStatusFeed(ctx, recordID, model.StatusQueued, "", 0); err != nil {
		return fmt.Errorf("requeue record %d: %w", recordID, err)
	}
	e.logger.Info().Int64("record", recordID).Msg("record requeued")
	return nil
}

// RequestRestore flags a ready backup for restore into its origin
// database. The restore dispatcher picks it up on its next pass.
func (e *Engine) RequestRestore(ctx context.Context, recordID int64) error {
	record, err := e.stores.Records.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("resolve record %d: %w", recordID, err)
	}
	if record.RestoreStatus == model.RestorePending || record.RestoreStatus == model.RestoreExecuting {
		return fmt.Errorf("record %d already has a restore in flight", recordID)
	}
	if err := e.stores.Records.UpdateRestoreStatus(ctx, recordID, model.RestorePending, ""); err != nil {
		return fmt.Errorf("request restore for record %d: %w", recordID, err)
	}
	e.logger.Info().Int64("record", recordID).Msg("restore requested")
	return nil
}

// TestConnectivity probes the group's database server with the engine
// family's native client. Used before enabling schedules on a new group.
func (e *Engine) TestConnectivity(ctx context.Context, groupID string) error {
	group, err := e.stores.Groups.GetByID(ctx, groupID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("resolve group %s: %w", groupID, err)
	}
	drv, err := driver.ForEngine(group.Engine, e.logger)
	if err != nil {
		return err
	}
	return drv.TestConnectivity(ctx, group)
}
