// Package clock abstracts time for components that schedule work or stamp
// records, so that tests can drive time deterministically instead of
// sleeping against the wall clock.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time, sleeps, and tickers. Components never
// call time.Now, time.Sleep, or time.NewTicker directly; they take a Clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C and can be stopped or re-armed with a new
// interval. Reset is required by watchers that change cadence at runtime.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// System is a Clock backed by the real time package.
type System struct{}

// NewSystem returns the wall-clock implementation.
func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

func (System) Sleep(d time.Duration) { time.Sleep(d) }

func (System) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time     { return s.t.C }
func (s *systemTicker) Reset(d time.Duration)   { s.t.Reset(d) }
func (s *systemTicker) Stop()                   { s.t.Stop() }

// Fake is a manually advanced Clock for tests. Advancing the clock moves
// Now, wakes sleepers whose deadline has passed, and delivers one tick to
// every ticker whose interval has elapsed.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	tickers []*fakeTicker
}

// NewFake creates a Fake clock pinned at the given instant.
func NewFake(now time.Time) *Fake {
	f := &Fake{now: now}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep blocks until the clock has been advanced d past the moment of the
// call. A non-positive duration returns immediately.
func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	deadline := f.now.Add(d)
	for f.now.Before(deadline) {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		clock:    f,
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward and fires any tickers that come due.
// Ticks are delivered non-blocking: a ticker whose channel is full drops
// the tick, matching time.Ticker semantics.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	tickers := make([]*fakeTicker, len(f.tickers))
	copy(tickers, f.tickers)
	f.cond.Broadcast()
	f.mu.Unlock()

	for _, t := range tickers {
		t.fireUpTo(now)
	}
}

// Set pins the clock at an absolute instant without firing tickers.
// Sleepers whose deadline the new instant passes are woken.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
	f.cond.Broadcast()
}

type fakeTicker struct {
	clock    *Fake
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	stopped  bool
	ch       chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
	t.next = t.clock.Now().Add(d)
	t.stopped = false
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) fireUpTo(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.interval <= 0 {
		return
	}
	for !t.next.After(now) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.interval)
	}
}
