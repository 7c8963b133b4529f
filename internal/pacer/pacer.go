// SPDX-License-Identifier: MIT

// Package pacer provides the process-wide pause barrier applied when the
// inference backend signals throttling.
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/metrics"
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Gate is a shared barrier: Wait passes while the gate is open and blocks
// while a pause window is pending. Trigger opens or extends the window; the
// deadline only ever moves forward. All waiters share one timer.
type Gate struct {
	mu         sync.Mutex
	pauseUntil time.Time
	waitCh     chan struct{} // non-nil while a pause window is pending
	pause      time.Duration
	clock      clock
	logger     zerolog.Logger
}

// Option configuration pattern
type Option func(*Gate)

func WithClock(c clock) Option {
	return func(g *Gate) { g.clock = c }
}

// New returns a Gate that pauses for the given window on each trigger.
func New(pause time.Duration, opts ...Option) *Gate {
	g := &Gate{
		pause:  pause,
		clock:  realClock{},
		logger: log.WithComponent("pacer"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until any pending pause window has elapsed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.waitCh
		pending := ch != nil && g.pauseUntil.After(g.clock.Now())
		g.mu.Unlock()
		if !pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			// Window closed or extended; re-check.
		}
	}
}

// Trigger extends the pause deadline to now + pause. The label names the
// call site for the log trail; it does not affect the deadline algebra.
func (g *Gate) Trigger(label string) {
	g.mu.Lock()
	now := g.clock.Now()
	deadline := now.Add(g.pause)
	extended := false
	if deadline.After(g.pauseUntil) {
		g.pauseUntil = deadline
		extended = true
	}
	if g.waitCh == nil {
		g.waitCh = make(chan struct{})
		go g.expire()
	}
	remaining := g.pauseUntil.Sub(now)
	g.mu.Unlock()

	metrics.IncPauseTriggered()
	g.logger.Warn().
		Str(log.FieldEvent, "pacer.pause").
		Str("label", label).
		Dur("remaining", remaining).
		Bool("extended", extended).
		Msg("rate-limit pause active")
}

// expire owns the single timer for the current window. It re-arms itself
// when a Trigger moved the deadline while it slept.
func (g *Gate) expire() {
	for {
		g.mu.Lock()
		remaining := g.pauseUntil.Sub(g.clock.Now())
		if remaining <= 0 {
			ch := g.waitCh
			g.waitCh = nil
			g.mu.Unlock()
			close(ch)
			g.logger.Info().Str(log.FieldEvent, "pacer.resume").Msg("rate-limit pause elapsed")
			return
		}
		timer := g.clock.After(remaining)
		g.mu.Unlock()
		<-timer
	}
}
