package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// runLoop runs pass on a fixed interval until the context is cancelled.
// A failed pass is logged and the loop continues; no pass error may kill
// the process.
func runLoop(ctx context.Context, logger zerolog.Logger, interval time.Duration, pass func(context.Context) error) error {
	logger.Info().Dur("interval", interval).Msg("starting loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("loop stopped")
			return nil
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				logger.Error().Err(err).Msg("pass failed")
			}
		}
	}
}
