package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/transport"
)

const sweepInterval = time.Minute

// ExpirySweeper removes backup records past their retention horizon, in
// bounded batches per pass. Local files are removed best-effort; with
// in-depth delete enabled, copies already delivered to remote channels
// that support deletion are scrubbed too, through delete bots that bypass
// the group budget so retention can never be blocked by a full pool.
type ExpirySweeper struct {
	logger        zerolog.Logger
	stores        Stores
	pool          *Pool
	batchSize     int
	inDepthDelete bool
	now           func() time.Time
}

func NewExpirySweeper(logger zerolog.Logger, stores Stores, pool *Pool, batchSize int, inDepthDelete bool) *ExpirySweeper {
	return &ExpirySweeper{
		logger:        logger.With().Str("component", "expiry-sweeper").Logger(),
		stores:        stores,
		pool:          pool,
		batchSize:     batchSize,
		inDepthDelete: inDepthDelete,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExpirySweeper) Run(ctx context.Context) error {
	return runLoop(ctx, s.logger, sweepInterval, s.Pass)
}

func (s *ExpirySweeper) Pass(ctx context.Context) error {
	expired, err := s.stores.Records.ListExpired(ctx, s.now(), s.batchSize)
	if err != nil {
		return fmt.Errorf("list expired records: %w", err)
	}

	for i := range expired {
		record := &expired[i]
		if err := s.sweep(ctx, record); err != nil {
			s.logger.Error().Err(err).Int64("record", record.ID).Msg("sweep failed")
		}
	}

	return nil
}

func (s *ExpirySweeper) sweep(ctx context.Context, record *model.BackupRecord) error {
	// Capture the delivery rows before the record goes: removing the
	// record cascades them away, and in-depth delete still needs to know
	// where copies landed.
	var remote []model.BackupRecordDelivery
	if s.inDepthDelete {
		deliveries, err := s.stores.Deliveries.ListByRecord(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("list deliveries for record %d: %w", record.ID, err)
		}
		for _, delivery := range deliveries {
			if delivery.Status == model.StatusReady && transport.SupportsRemoteDelete(delivery.Channel) {
				remote = append(remote, delivery)
			}
		}
	}

	if err := s.stores.Records.Remove(ctx, record.ID); err != nil {
		return fmt.Errorf("remove expired record %d: %w", record.ID, err)
	}

	if record.Path != "" {
		if err := os.Remove(record.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", record.Path).Msg("local file removal failed")
		}
	}

	s.logger.Info().Int64("record", record.ID).Str("group", record.GroupID).Msg("expired record removed")

	if len(remote) > 0 {
		s.scrubRemote(ctx, record, remote)
	}
	return nil
}

// scrubRemote admits one delete bot per remote copy. Delete bots are
// registered directly, without a free-slot check: retention work must not
// queue behind backup traffic.
func (s *ExpirySweeper) scrubRemote(ctx context.Context, record *model.BackupRecord, deliveries []model.BackupRecordDelivery) {
	group, err := s.stores.Groups.GetByID(ctx, record.GroupID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn().Int64("record", record.ID).Msg("group deleted, remote copies left behind")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("record", record.ID).Msg("resolve group failed")
		return
	}

	for _, delivery := range deliveries {
		tr, err := transport.ForChannel(delivery.Channel, group, s.logger)
		if err != nil {
			s.logger.Error().Err(err).Str("channel", delivery.Channel).Msg("remote delete transport unavailable")
			continue
		}
		deleter, ok := tr.(transport.RemoteDeleter)
		if !ok {
			continue
		}

		channel := delivery.Channel
		recordCopy := *record
		bot := NewBot(group.ID, deleteKey(record.ID, channel), func(ctx context.Context) error {
			if err := deleter.RemoteDelete(ctx, &recordCopy); err != nil {
				s.logger.Error().Err(err).Int64("record", recordCopy.ID).Str("channel", channel).Msg("remote delete failed")
				return err
			}
			s.logger.Info().Int64("record", recordCopy.ID).Str("channel", channel).Msg("remote copy deleted")
			return nil
		})
		s.pool.Add(bot)
	}
}

// deleteKey identifies the bot scrubbing one remote copy of a record.
func deleteKey(recordID int64, channel string) string {
	return fmt.Sprintf("delete/%d/%s", recordID, channel)
}
