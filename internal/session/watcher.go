package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/platform/clock"
)

// Watcher periodically re-evaluates every session. It runs at a coarse
// cadence while all sessions are healthy and tightens to a fine cadence
// while any session is in the warning state, so countdown consumers see
// second-granularity transitions without a busy loop.
type Watcher struct {
	guard  *Guard
	clock  clock.Clock
	logger zerolog.Logger

	coarse time.Duration
	fine   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a Watcher. coarse is the idle cadence (default 30s if
// zero), fine the warning-state cadence (default 1s if zero).
func NewWatcher(guard *Guard, clk clock.Clock, logger zerolog.Logger, coarse, fine time.Duration) *Watcher {
	if coarse <= 0 {
		coarse = 30 * time.Second
	}
	if fine <= 0 {
		fine = time.Second
	}
	return &Watcher{
		guard:  guard,
		clock:  clk,
		logger: logger,
		coarse: coarse,
		fine:   fine,
	}
}

// Start launches the check loop; Stop cancels it and waits for exit.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	ticker := w.clock.NewTicker(w.coarse)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		fineMode := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				anyWarning := w.guard.checkAll(w.clock.Now())
				if anyWarning && !fineMode {
					ticker.Reset(w.fine)
					fineMode = true
					w.logger.Debug().Dur("interval", w.fine).Msg("session watcher entering fine cadence")
				} else if !anyWarning && fineMode {
					ticker.Reset(w.coarse)
					fineMode = false
					w.logger.Debug().Dur("interval", w.coarse).Msg("session watcher returning to coarse cadence")
				}
			}
		}
	}()
}

// Stop cancels the loop and blocks until it has exited.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}
