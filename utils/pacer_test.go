package utils

import (
	"context"
	"testing"
	"time"
)

func TestPacerFirstWaitIsImmediate(t *testing.T) {
	p := NewPacer(500)

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Wait took %v, want immediate", elapsed)
	}
}

func TestPacerEnforcesInterval(t *testing.T) {
	intervalMs := 100
	p := NewPacer(intervalMs)

	var timestamps []time.Time
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
		timestamps = append(timestamps, time.Now())
		p.Done()
	}

	min := time.Duration(intervalMs) * time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between request %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestPacerMeasuresFromEndOfSlowRequest(t *testing.T) {
	interval := 80 * time.Millisecond
	p := NewPacer(int(interval / time.Millisecond))

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	time.Sleep(2 * interval) // request slower than the interval
	p.Done()

	finished := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if gap := time.Since(finished); gap < interval {
		t.Errorf("pause after slow request: %v < %v", gap, interval)
	}
}

func TestPacerCancelled(t *testing.T) {
	p := NewPacer(10_000)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	p.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait on cancelled ctx: got %v, want context.Canceled", err)
	}
}
