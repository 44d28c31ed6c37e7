package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// BotStatus is the in-memory lifecycle state of a bot.
type BotStatus int32

const (
	BotNotReady BotStatus = iota
	BotStarting
	BotRunning
	BotCompleted
	BotError
)

func (s BotStatus) String() string {
	switch s {
	case BotNotReady:
		return "not_ready"
	case BotStarting:
		return "starting"
	case BotRunning:
		return "running"
	case BotCompleted:
		return "completed"
	case BotError:
		return "error"
	}
	return "unknown"
}

// terminal reports whether the bot is finished and can be reaped.
func (s BotStatus) terminal() bool {
	return s == BotCompleted || s == BotError
}

// Bot is one unit of backup, compression, delivery, or delete work. Bots
// are never persisted; they exist only while in flight, and count against
// their resource group's concurrency budget from the moment of admission.
type Bot struct {
	ID        uuid.UUID
	GroupID   string
	RecordKey string
	CreatedAt time.Time

	status atomic.Int32
	run    func(ctx context.Context) error
}

// NewBot creates a bot in the not-ready state. It does not start running
// until the pool's background loop picks it up.
func NewBot(groupID, recordKey string, run func(ctx context.Context) error) *Bot {
	return &Bot{
		ID:        uuid.New(),
		GroupID:   groupID,
		RecordKey: recordKey,
		CreatedAt: time.Now().UTC(),
		run:       run,
	}
}

// Status returns the bot's current lifecycle state.
func (b *Bot) Status() BotStatus {
	return BotStatus(b.status.Load())
}

func (b *Bot) setStatus(s BotStatus) {
	b.status.Store(int32(s))
}

// exec runs the bot's payload and records the terminal state. An error is
// a completed-with-failure state, not a distinct removal path.
func (b *Bot) exec(ctx context.Context) {
	b.setStatus(BotRunning)
	if err := b.run(ctx); err != nil {
		b.setStatus(BotError)
		return
	}
	b.setStatus(BotCompleted)
}

// backupKey identifies the bot serving a backup record.
func backupKey(recordID int64) string {
	return fmt.Sprintf("backup/%d", recordID)
}

// deliveryKey identifies the bot serving a delivery record.
func deliveryKey(deliveryID string) string {
	return "delivery/" + deliveryID
}
