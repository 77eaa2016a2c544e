package utils

import (
	"context"
	"time"
)

// Pacer keeps a fixed pause between outbound requests. The pause is
// measured from the end of the previous request, so a slow or retried
// request never eats into it. The first Wait returns immediately.
type Pacer struct {
	interval     time.Duration
	lastFinished time.Time
}

// NewPacer creates a Pacer with the given interval in milliseconds.
func NewPacer(intervalMs int) *Pacer {
	return &Pacer{interval: time.Duration(intervalMs) * time.Millisecond}
}

// Wait blocks until interval has passed since the last Done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.lastFinished.IsZero() {
		return nil
	}
	if remaining := p.interval - time.Since(p.lastFinished); remaining > 0 {
		return Sleep(ctx, remaining)
	}
	return nil
}

// Done marks the end of a request.
func (p *Pacer) Done() {
	p.lastFinished = time.Now()
}

// Interval returns the configured pacing interval.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}
