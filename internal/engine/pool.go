package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const poolSweepInterval = 5 * time.Second

// Pool is the admission controller. It holds every in-flight bot across
// all dispatchers, answers the per-group free-slot question, and runs the
// background loop that is the only place bot execution is started.
type Pool struct {
	logger  zerolog.Logger
	metrics *Metrics

	mu   sync.Mutex
	bots map[uuid.UUID]*Bot
}

func NewPool(logger zerolog.Logger, metrics *Metrics) *Pool {
	return &Pool{
		logger:  logger.With().Str("component", "bot-pool").Logger(),
		metrics: metrics,
		bots:    make(map[uuid.UUID]*Bot),
	}
}

// Add registers a newly created bot. It does not start it; the background
// loop does that on its next sweep.
func (p *Pool) Add(bot *Bot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bots[bot.ID] = bot
	p.metrics.BotsInFlight.Set(float64(len(p.bots)))
}

// HasFreeSlot reports whether the group is below its concurrency budget.
// Every registered bot counts, whatever its lifecycle state: admission is
// the moment a bot starts occupying a slot, not the moment it runs.
func (p *Pool) HasFreeSlot(groupID string, maxConcurrent int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, bot := range p.bots {
		if bot.GroupID == groupID {
			count++
		}
	}
	return count < maxConcurrent
}

// Size returns the number of registered bots.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bots)
}

// Terminate force-removes the bots serving the given record keys,
// whatever their state. Used by the watchdog after it has already flagged
// the underlying records as errored; a still-running payload keeps its
// goroutine but no longer occupies a slot.
func (p *Pool) Terminate(recordKeys []string) int {
	keys := make(map[string]bool, len(recordKeys))
	for _, k := range recordKeys {
		keys[k] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, bot := range p.bots {
		if keys[bot.RecordKey] {
			delete(p.bots, id)
			removed++
			p.logger.Warn().Str("record_key", bot.RecordKey).Str("status", bot.Status().String()).Msg("terminated bot")
		}
	}
	p.metrics.BotsInFlight.Set(float64(len(p.bots)))
	return removed
}

// Run starts every not-ready bot and reaps every finished one, on a fixed
// interval, until the context is cancelled. Errors inside one bot never
// stop the loop.
func (p *Pool) Run(ctx context.Context) error {
	return runLoop(ctx, p.logger, poolSweepInterval, func(ctx context.Context) error {
		p.sweep(ctx)
		return nil
	})
}

func (p *Pool) sweep(ctx context.Context) {
	p.mu.Lock()
	var toStart []*Bot
	for id, bot := range p.bots {
		switch {
		case bot.Status() == BotNotReady:
			bot.setStatus(BotStarting)
			toStart = append(toStart, bot)
		case bot.Status().terminal():
			delete(p.bots, id)
			p.metrics.BotsReaped.Inc()
		}
	}
	p.metrics.BotsInFlight.Set(float64(len(p.bots)))
	p.mu.Unlock()

	// Fire and forget: the sweep never waits on a payload, so a slow bot
	// cannot block starting the next one.
	for _, bot := range toStart {
		p.logger.Debug().Str("record_key", bot.RecordKey).Str("group", bot.GroupID).Msg("starting bot")
		p.metrics.BotsStarted.Inc()
		go bot.exec(ctx)
	}
}
