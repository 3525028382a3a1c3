package services

import (
	"context"
	"time"
)

// Poller repeats an action until a continuation predicate turns false or a
// wall-clock deadline passes. The deadline is computed once at loop entry and
// the action always runs at least once. Reaching the deadline is not an error:
// the loop just stops with whatever the last poll observed.
type Poller struct {
	Wait    time.Duration
	Timeout time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// NewPoller builds a poller with the given fixed inter-poll delay and overall
// timeout.
func NewPoller(wait, timeout time.Duration) *Poller {
	return &Poller{Wait: wait, Timeout: timeout}
}

// Run polls until next reports false or the deadline passes. Poll errors abort
// the loop and propagate.
func (p *Poller) Run(ctx context.Context, poll func(context.Context) error, next func() bool) error {
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	deadline := now().Add(p.Timeout)
	for {
		if err := poll(ctx); err != nil {
			return err
		}
		if !next() || !now().Before(deadline) {
			return nil
		}
		sleep(p.Wait)
	}
}
