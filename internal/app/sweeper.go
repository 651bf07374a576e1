package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SweepTarget is anything whose rooms can be swept.
type SweepTarget interface {
	SweepAll(now time.Time) int
}

// SweepFunc adapts a plain function to SweepTarget.
type SweepFunc func(now time.Time) int

func (f SweepFunc) SweepAll(now time.Time) int { return f(now) }

// RunSweeper invokes target.SweepAll every interval until ctx is done.
// It plays the role of the hosting platform's recurring schedule.
func RunSweeper(ctx context.Context, interval time.Duration, target SweepTarget) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.sweeper").Dur("interval", interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return nil
		case now := <-ticker.C:
			if n := target.SweepAll(now); n > 0 {
				log.Info().Str("module", "app.sweeper").Int("evicted", n).Msg("idle connections swept")
			}
		}
	}
}
