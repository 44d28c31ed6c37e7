package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

const watchdogInterval = time.Minute

// watchdogMessage is written to every record and delivery the watchdog
// flags, so the timeout is distinguishable from a payload failure.
const watchdogMessage = "execution timeout"

// Watchdog flags records and deliveries that have sat in a transient
// state past the timeout, then force-removes their bots from the pool so
// the stuck work stops occupying slots. A bot whose payload is still
// running keeps its goroutine; it just no longer counts against the
// budget, and its late status feed loses to the watchdog's error only by
// arriving first.
type Watchdog struct {
	logger  zerolog.Logger
	stores  Stores
	pool    *Pool
	timeout time.Duration
}

func NewWatchdog(logger zerolog.Logger, stores Stores, pool *Pool, timeout time.Duration) *Watchdog {
	return &Watchdog{
		logger:  logger.With().Str("component", "watchdog").Logger(),
		stores:  stores,
		pool:    pool,
		timeout: timeout,
	}
}

func (w *Watchdog) Run(ctx context.Context) error {
	return runLoop(ctx, w.logger, watchdogInterval, w.Pass)
}

func (w *Watchdog) Pass(ctx context.Context) error {
	recordIDs, err := w.stores.Records.ListNonResponsive(ctx,
		[]string{model.StatusExecuting, model.StatusCompressing}, w.timeout)
	if err != nil {
		return fmt.Errorf("list non-responsive records: %w", err)
	}

	restoreIDs, err := w.stores.Records.ListNonResponsiveRestores(ctx,
		[]string{model.RestoreExecuting}, w.timeout)
	if err != nil {
		return fmt.Errorf("list non-responsive restores: %w", err)
	}

	deliveryIDs, err := w.stores.Deliveries.ListNonResponsive(ctx,
		[]string{model.StatusExecuting}, w.timeout)
	if err != nil {
		return fmt.Errorf("list non-responsive deliveries: %w", err)
	}

	if len(recordIDs) == 0 && len(restoreIDs) == 0 && len(deliveryIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(recordIDs)+len(restoreIDs)+len(deliveryIDs))
	for _, id := range recordIDs {
		w.logger.Warn().Int64("record", id).Msg("record non-responsive")
		if err := w.stores.Records.UpdateStatusFeed(ctx, id, model.StatusError, watchdogMessage, 0); err != nil {
			w.logger.Error().Err(err).Int64("record", id).Msg("flag record failed")
			continue
		}
		keys = append(keys, backupKey(id))
	}
	for _, id := range restoreIDs {
		w.logger.Warn().Int64("record", id).Msg("restore non-responsive")
		if err := w.stores.Records.UpdateRestoreStatus(ctx, id, model.RestoreFailed, watchdogMessage); err != nil {
			w.logger.Error().Err(err).Int64("record", id).Msg("flag restore failed")
			continue
		}
		keys = append(keys, restoreKey(id))
	}
	for _, id := range deliveryIDs {
		w.logger.Warn().Str("delivery", id).Msg("delivery non-responsive")
		if err := w.stores.Deliveries.UpdateStatusFeed(ctx, id, model.StatusError, watchdogMessage, 0); err != nil {
			w.logger.Error().Err(err).Str("delivery", id).Msg("flag delivery failed")
			continue
		}
		keys = append(keys, deliveryKey(id))
	}

	if removed := w.pool.Terminate(keys); removed > 0 {
		w.logger.Warn().Int("removed", removed).Msg("terminated stuck bots")
	}

	return nil
}
