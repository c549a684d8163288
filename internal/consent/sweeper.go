package consent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/platform/clock"
)

// Sweeper runs the expiry sweep on a schedule so that expiry cost is
// bounded instead of being paid on every read. The sweep is idempotent, so
// overlapping or repeated runs are harmless.
type Sweeper struct {
	store    *Store
	clock    clock.Clock
	logger   zerolog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a Sweeper that fires every interval.
func NewSweeper(store *Store, clk clock.Clock, logger zerolog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		clock:    clk,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the sweep loop. It returns immediately; Stop cancels the
// loop and waits for it to exit.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	ticker := s.clock.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and blocks until it has exited.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := s.clock.Now()
	expired, err := s.store.ExpireSweep(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("consent expiry sweep failed")
		return
	}
	if len(expired) > 0 {
		s.logger.Info().Int("expired", len(expired)).Msg("consent expiry sweep")
	}
}
