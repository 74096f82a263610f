package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces publishes so the robot is not flooded with commands.
// Only successful publishes take up a slot: a command that fails to send
// leaves the next caller free to go at once. Hold is the quiet period a
// caller observes after its own successful publish.
// A zero interval disables pacing.
type Pacer struct {
	interval time.Duration
	limiter  *rate.Limiter
	// turn admits one publisher at a time between Acquire and Release
	turn chan struct{}
}

// NewPacer creates a pacer with the given minimum spacing
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		turn:     make(chan struct{}, 1),
	}
}

// Interval returns the configured spacing
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Acquire blocks until the caller may publish or ctx is done. A nil error
// must be followed by exactly one Release.
func (p *Pacer) Acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	select {
	case p.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		tokens := p.limiter.Tokens()
		if tokens >= 1 {
			return nil
		}
		wait := time.Duration((1 - tokens) / float64(p.limiter.Limit()) * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-p.turn
			return ctx.Err()
		}
	}
}

// Release ends the caller's turn. sent reports whether the publish went
// out; only then is the slot used up.
func (p *Pacer) Release(sent bool) {
	if p.limiter == nil {
		return
	}
	if sent {
		p.limiter.Allow()
	}
	<-p.turn
}

// Hold waits out the quiet period. It returns early, with ctx's error,
// when ctx is done first.
func (p *Pacer) Hold(ctx context.Context) error {
	if p.interval <= 0 {
		return nil
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
