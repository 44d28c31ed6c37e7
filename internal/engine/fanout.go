package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

const fanoutInterval = 3 * time.Second

// FanoutScheduler turns each ready backup record into one queued delivery
// per channel its group has enabled, exactly once per record. Delivery
// identities are derived from (record, group, channel), so a crashed or
// repeated pass upserts the same rows instead of duplicating them.
type FanoutScheduler struct {
	logger  zerolog.Logger
	stores  Stores
	metrics *Metrics
	now     func() time.Time
}

func NewFanoutScheduler(logger zerolog.Logger, stores Stores, metrics *Metrics) *FanoutScheduler {
	return &FanoutScheduler{
		logger:  logger.With().Str("component", "fanout-scheduler").Logger(),
		stores:  stores,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (f *FanoutScheduler) Run(ctx context.Context) error {
	return runLoop(ctx, f.logger, fanoutInterval, f.Pass)
}

func (f *FanoutScheduler) Pass(ctx context.Context) error {
	ready, err := f.stores.Records.ListReadyUndelivered(ctx)
	if err != nil {
		return fmt.Errorf("list ready undelivered records: %w", err)
	}

	for i := range ready {
		record := &ready[i]
		if err := f.fanOut(ctx, record); err != nil {
			f.logger.Error().Err(err).Int64("record", record.ID).Msg("fan-out failed")
			f.metrics.DispatchTotal.WithLabelValues("fanout", "error").Inc()
			continue
		}
		f.metrics.DispatchTotal.WithLabelValues("fanout", "ok").Inc()
	}

	return nil
}

func (f *FanoutScheduler) fanOut(ctx context.Context, record *model.BackupRecord) error {
	group, err := f.stores.Groups.GetByID(ctx, record.GroupID)
	if errors.Is(err, ErrNotFound) {
		// No group means no delivery policy; close out the run so the
		// record stops being picked up.
		return f.stores.Records.MarkDeliveryRun(ctx, record.ID, model.DeliveryRunSkipped)
	}
	if err != nil {
		return fmt.Errorf("resolve group %s: %w", record.GroupID, err)
	}

	channels := group.Delivery.EnabledChannels()
	if len(channels) == 0 {
		f.logger.Debug().Int64("record", record.ID).Msg("no delivery channels enabled")
		return f.stores.Records.MarkDeliveryRun(ctx, record.ID, model.DeliveryRunSkipped)
	}

	now := f.now()
	failed := 0
	for _, channel := range channels {
		delivery := &model.BackupRecordDelivery{
			ID:              model.DeliveryID(record.ID, group.ID, channel),
			RecordID:        record.ID,
			Channel:         channel,
			Status:          model.StatusQueued,
			RegisteredAt:    now,
			StatusUpdatedAt: now,
		}
		if err := f.stores.Deliveries.Upsert(ctx, delivery); err != nil {
			f.logger.Error().Err(err).Int64("record", record.ID).Str("channel", channel).Msg("delivery upsert failed")
			failed++
		}
	}

	// The run closes even when some channels failed to enqueue: replaying
	// the whole fan-out would race deliveries that already landed, so the
	// failed channels stay in the log instead of being retried.
	if failed > 0 {
		f.logger.Warn().Int64("record", record.ID).Int("failed_channels", failed).Msg("fan-out closed with failed channels")
	} else {
		f.logger.Info().Int64("record", record.ID).Strs("channels", channels).Msg("deliveries scheduled")
	}
	return f.stores.Records.MarkDeliveryRun(ctx, record.ID, model.DeliveryRunSuccess)
}
