package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/transport"
)

const deliveryDispatchInterval = 5 * time.Second

// DeliveryDispatcher promotes queued deliveries into running delivery
// bots, one per channel, under the same per-group concurrency budget as
// backup and compression work.
type DeliveryDispatcher struct {
	logger  zerolog.Logger
	stores  Stores
	pool    *Pool
	metrics *Metrics
	now     func() time.Time
}

func NewDeliveryDispatcher(logger zerolog.Logger, stores Stores, pool *Pool, metrics *Metrics) *DeliveryDispatcher {
	return &DeliveryDispatcher{
		logger:  logger.With().Str("component", "delivery-dispatcher").Logger(),
		stores:  stores,
		pool:    pool,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *DeliveryDispatcher) Run(ctx context.Context) error {
	return runLoop(ctx, d.logger, deliveryDispatchInterval, d.Pass)
}

func (d *DeliveryDispatcher) Pass(ctx context.Context) error {
	queued, err := d.stores.Deliveries.ListByStatus(ctx, model.StatusQueued)
	if err != nil {
		return fmt.Errorf("list queued deliveries: %w", err)
	}

	for i := range queued {
		delivery := &queued[i]
		if err := d.dispatch(ctx, delivery); err != nil {
			d.logger.Error().Err(err).Str("delivery", delivery.ID).Msg("dispatch failed")
			d.metrics.DispatchTotal.WithLabelValues("delivery", "error").Inc()
			continue
		}
		d.metrics.DispatchTotal.WithLabelValues("delivery", "ok").Inc()
	}

	return nil
}

func (d *DeliveryDispatcher) dispatch(ctx context.Context, delivery *model.BackupRecordDelivery) error {
	record, err := d.stores.Records.GetByID(ctx, delivery.RecordID)
	if errors.Is(err, ErrNotFound) {
		// The backup is gone; there is nothing left to deliver.
		return d.stores.Deliveries.Remove(ctx, delivery.ID)
	}
	if err != nil {
		return fmt.Errorf("resolve record %d: %w", delivery.RecordID, err)
	}

	group, err := d.stores.Groups.GetByID(ctx, record.GroupID)
	if errors.Is(err, ErrNotFound) {
		return d.stores.Deliveries.Remove(ctx, delivery.ID)
	}
	if err != nil {
		return fmt.Errorf("resolve group %s: %w", record.GroupID, err)
	}

	if !group.Delivery.ChannelEnabled(delivery.Channel) {
		// Policy changed between fan-out and dispatch; drop the delivery
		// instead of pushing to a channel the group turned off.
		d.logger.Info().Str("delivery", delivery.ID).Str("channel", delivery.Channel).Msg("channel disabled, dropping delivery")
		return d.stores.Deliveries.Remove(ctx, delivery.ID)
	}

	if !d.pool.HasFreeSlot(group.ID, group.MaxConcurrentBots) {
		return nil
	}

	tr, err := transport.ForChannel(delivery.Channel, group, d.logger)
	if err != nil {
		// Bad channel config is visible on the delivery record; the
		// record itself keeps its ready status. An unknown channel tag is
		// dropped outright since no retry can fix it.
		if feedErr := d.stores.Deliveries.UpdateStatusFeed(ctx, delivery.ID, model.StatusError, err.Error(), 0); feedErr != nil {
			return feedErr
		}
		if errors.Is(err, transport.ErrUnknownChannel) {
			return d.stores.Deliveries.Remove(ctx, delivery.ID)
		}
		return nil
	}

	deliveryID := delivery.ID
	started := d.now()
	bot := NewBot(group.ID, deliveryKey(deliveryID), func(ctx context.Context) error {
		result, err := tr.Deliver(ctx, record)
		if err != nil {
			d.feedDelivery(ctx, deliveryID, model.StatusError, err.Error(), started)
			return err
		}
		d.feedDelivery(ctx, deliveryID, model.StatusReady, result, started)
		return nil
	})
	d.pool.Add(bot)

	if err := d.stores.Deliveries.UpdateStatusFeed(ctx, delivery.ID, model.StatusExecuting, "", 0); err != nil {
		d.logger.Error().Err(err).Str("delivery", delivery.ID).Msg("mark executing failed")
	}

	d.logger.Info().Str("delivery", delivery.ID).Str("channel", delivery.Channel).Str("group", group.ID).Msg("delivery admitted")
	return nil
}

func (d *DeliveryDispatcher) feedDelivery(ctx context.Context, deliveryID, status, message string, started time.Time) {
	if err := d.stores.Deliveries.UpdateStatusFeed(ctx, deliveryID, status, message, d.now().Sub(started)); err != nil {
		d.logger.Error().Err(err).Str("delivery", deliveryID).Str("status", status).Msg("status feed failed")
	}
}
