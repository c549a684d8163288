// Package audit provides the append-only audit trail that every other
// component writes to. Appends are buffered and retried in the background
// so that a slow or failing audit sink never blocks patient care
// operations; a persistent sink outage degrades to structured warnings
// instead of unwinding the business operation that triggered the event.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/platform/clock"
)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithQueueSize sets the bounded local queue capacity.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) { r.queueSize = n }
}

// WithMaxRetries sets how many times a failed insert is retried before the
// event is abandoned with a degraded-mode warning.
func WithMaxRetries(n int) RecorderOption {
	return func(r *Recorder) { r.maxRetries = n }
}

// WithRetryDelay sets the pause between insert retries.
func WithRetryDelay(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.retryDelay = d }
}

// Recorder is the sole append surface for the audit log. Other components
// hold a *Recorder, never the underlying store, so nothing in the system
// can reach past events for modification.
type Recorder struct {
	store      EventStore
	clock      clock.Clock
	logger     zerolog.Logger
	queue      chan *Event
	queueSize  int
	maxRetries int
	retryDelay time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64

	// pendingN counts enqueued-but-unwritten events. A plain counter with
	// a condition variable, not a WaitGroup, so Flush may run concurrently
	// with Append.
	pendingMu   sync.Mutex
	pendingCond *sync.Cond
	pendingN    int
}

// NewRecorder creates a Recorder and starts its background writer.
func NewRecorder(store EventStore, clk clock.Clock, logger zerolog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      store,
		clock:      clk,
		logger:     logger,
		queueSize:  1024,
		maxRetries: 3,
		retryDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pendingCond = sync.NewCond(&r.pendingMu)
	r.queue = make(chan *Event, r.queueSize)

	r.wg.Add(1)
	go r.drain()
	return r
}

// Append enqueues an event for durable storage and returns its id without
// waiting for the write. Zero-valued id, timestamp, and correlation id are
// filled in. If the queue is saturated the event is surfaced as a warning
// and counted as dropped rather than blocking the caller.
func (r *Recorder) Append(event Event) uuid.UUID {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock.Now()
	}
	if event.CorrelationID == uuid.Nil {
		event.CorrelationID = uuid.New()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.degraded(&event, "recorder closed")
		return event.ID
	}

	r.pendingAdd()
	select {
	case r.queue <- &event:
	default:
		r.pendingDone()
		r.degraded(&event, "audit queue full")
	}
	return event.ID
}

func (r *Recorder) pendingAdd() {
	r.pendingMu.Lock()
	r.pendingN++
	r.pendingMu.Unlock()
}

func (r *Recorder) pendingDone() {
	r.pendingMu.Lock()
	r.pendingN--
	r.pendingMu.Unlock()
	r.pendingCond.Broadcast()
}

// Flush blocks until every event enqueued before the call has been written
// or abandoned. Safe to call concurrently with Append; events enqueued
// while Flush waits are drained too.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pendingMu.Lock()
		for r.pendingN > 0 {
			r.pendingCond.Wait()
		}
		r.pendingMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding events and stops the background writer. It is
// safe to call once; subsequent Appends degrade instead of enqueueing.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.Flush(ctx)
	close(r.queue)
	r.wg.Wait()
	return err
}

// Dropped reports how many events were abandoned after exhausting retries
// or hitting a saturated queue. A non-zero value indicates the audit trail
// is incomplete and should be alarmed on.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for event := range r.queue {
		r.write(event)
		r.pendingDone()
	}
}

// write attempts the insert with a bounded number of retries. At-least-once:
// an event is only given up after maxRetries+1 failed attempts, and the
// failure is logged with the full event context.
func (r *Recorder) write(event *Event) {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 && r.retryDelay > 0 {
			// Linear backoff on the injected clock: each retry waits
			// one delay longer.
			r.clock.Sleep(r.retryDelay * time.Duration(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = r.store.Insert(ctx, event)
		cancel()
		if err == nil {
			return
		}
	}
	r.dropped.Add(1)
	r.logger.Warn().
		Err(err).
		Str("event_id", event.ID.String()).
		Str("principal_id", event.PrincipalID).
		Str("action", event.Action).
		Str("result", string(event.Result)).
		Int("attempts", r.maxRetries+1).
		Msg("audit write degraded: event not persisted")
}

func (r *Recorder) degraded(event *Event, reason string) {
	r.dropped.Add(1)
	r.logger.Warn().
		Str("event_id", event.ID.String()).
		Str("principal_id", event.PrincipalID).
		Str("action", event.Action).
		Str("reason", reason).
		Msg("audit write degraded: event not enqueued")
}

// QueryEvents reads back from the underlying store; the read side is
// exposed here so callers depend on one audit package, not the store.
func (r *Recorder) QueryEvents(ctx context.Context, q Query) ([]*Event, error) {
	return r.store.Query(ctx, q)
}
