package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start)

	if !clk.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", clk.Now(), start)
	}

	clk.Advance(90 * time.Minute)
	want := start.Add(90 * time.Minute)
	if !clk.Now().Equal(want) {
		t.Fatalf("Now = %v, want %v", clk.Now(), want)
	}
}

func TestFakeSet(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	pinned := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(pinned)
	if !clk.Now().Equal(pinned) {
		t.Fatalf("Now = %v, want %v", clk.Now(), pinned)
	}
}

func TestFakeSleepWakesOnAdvance(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	go func() {
		clk.Sleep(5 * time.Second)
		close(done)
	}()

	// Advance repeatedly so the sleeper's deadline passes even if it
	// computes the deadline after the first advance.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-timeout:
			t.Fatal("Sleep did not wake after the clock advanced past its deadline")
		default:
			clk.Advance(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestFakeSleepNonPositiveReturns(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	clk.Sleep(0)
	clk.Sleep(-time.Second)
}

func TestFakeTickerFiresWhenDue(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Minute)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before interval elapsed")
	default:
	}

	clk.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after interval elapsed")
	}
}

func TestFakeTickerDropsWhenChannelFull(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Minute)
	defer ticker.Stop()

	// Three intervals elapse but the buffered channel holds one tick.
	clk.Advance(3 * time.Minute)

	got := 0
	for {
		select {
		case <-ticker.C():
			got++
			continue
		default:
		}
		break
	}
	if got != 1 {
		t.Fatalf("ticks delivered = %d, want 1", got)
	}
}

func TestFakeTickerReset(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Hour)

	ticker.Reset(time.Second)
	clk.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not honor the reset interval")
	}
}

func TestFakeTickerStop(t *testing.T) {
	clk := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Minute)
	ticker.Stop()

	clk.Advance(5 * time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestSystemNowIsUTC(t *testing.T) {
	if zone, _ := NewSystem().Now().Zone(); zone != "UTC" {
		t.Fatalf("zone = %q, want UTC", zone)
	}
}
