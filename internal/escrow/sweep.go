package escrow

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"skinmarket/internal/observability"
)

// DefaultSweepInterval is how often the deadline sweep polls. The deadline
// lives in the trade row, so a delayed or skipped pass still resolves every
// overdue trade on the next run.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically expires trades whose buyer-response deadline elapsed.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("deadline sweep started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("sweep pass failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("deadline sweep stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single sweep pass and returns how many trades expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	observability.SweepRunsTotal.Inc()
	expired, err := s.svc.ExpireOverdue(ctx)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("sweep resolved overdue trades")
	}
	return expired, nil
}
