// SPDX-License-Identifier: MIT

// Package policy executes single inference calls under the worker's
// timeout, retry, and skip discipline.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/metrics"
)

// Outcome labels for metrics and logging.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeRetryable   = "retryable"
	OutcomeFatal       = "fatal"
)

// SkipError marks a unit-level failure. Stages absorb it into a sentinel
// result instead of failing the job.
type SkipError struct {
	Label  string
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skip %s (%s): %v", e.Label, e.Reason, e.Err)
	}
	return fmt.Sprintf("skip %s (%s)", e.Label, e.Reason)
}

func (e *SkipError) Unwrap() error { return e.Err }

// IsSkip reports whether err is (or wraps) a unit skip.
func IsSkip(err error) bool {
	var s *SkipError
	return errors.As(err, &s)
}

// Gate is the pause-barrier surface the runner depends on.
type Gate interface {
	Wait(ctx context.Context) error
	Trigger(label string)
}

// statusCarrier is satisfied by backend errors that expose an HTTP code
// and an API status string.
type statusCarrier interface {
	HTTPStatus() int
	APIStatus() string
}

// clock abstracts the retry sleep for testability.
type clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options carry the per-call discipline knobs.
type Options struct {
	CallTimeout         time.Duration
	RetryInterval       time.Duration
	MaxTransientRetries int
}

// Runner executes thunks under the policy contract.
type Runner struct {
	gate   Gate
	opts   Options
	clock  clock
	logger zerolog.Logger
}

// Option configuration pattern
type Option func(*Runner)

func WithClock(c clock) Option {
	return func(r *Runner) { r.clock = c }
}

// New returns a Runner bound to the shared gate.
func New(gate Gate, opts Options, fnOpts ...Option) *Runner {
	r := &Runner{
		gate:   gate,
		opts:   opts,
		clock:  realClock{},
		logger: log.WithComponent("policy"),
	}
	for _, opt := range fnOpts {
		opt(r)
	}
	return r
}

// Do runs fn under the policy: wait on the gate before each attempt, cap
// each attempt at CallTimeout, pause once and retry on the first throttle,
// skip on the second, retry transient failures on a fixed interval up to
// the budget, and skip everything else immediately.
func Do[T any](ctx context.Context, r *Runner, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	rateLimitStrikes := 0
	transientRetries := 0
	attempt := 0

	for {
		if err := r.gate.Wait(ctx); err != nil {
			return zero, err
		}
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		v, err := fn(attemptCtx)
		cancel()

		if err == nil {
			metrics.IncInferenceCall(OutcomeSuccess)
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		outcome := classify(err)
		metrics.IncInferenceCall(outcome)
		l := r.logger.With().
			Str("label", label).
			Str(log.FieldOutcome, outcome).
			Int(log.FieldAttempt, attempt).
			Logger()

		switch outcome {
		case OutcomeRateLimited:
			rateLimitStrikes++
			if rateLimitStrikes == 1 {
				l.Warn().Err(err).Msg("throttled, pausing and retrying")
				r.gate.Trigger(label)
				continue
			}
			l.Warn().Err(err).Msg("throttled twice, skipping unit")
			return zero, &SkipError{Label: label, Reason: "rate_limited", Err: err}

		case OutcomeRetryable:
			transientRetries++
			if transientRetries <= r.opts.MaxTransientRetries {
				l.Warn().Err(err).Dur("retry_in", r.opts.RetryInterval).Msg("transient failure, retrying")
				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-r.clock.After(r.opts.RetryInterval):
				}
				continue
			}
			l.Warn().Err(err).Msg("transient retry budget exhausted, skipping unit")
			return zero, &SkipError{Label: label, Reason: "retryable_exhausted", Err: err}

		default:
			l.Warn().Err(err).Msg("non-retryable failure, skipping unit")
			return zero, &SkipError{Label: label, Reason: "fatal", Err: err}
		}
	}
}

// classify maps an attempt error to its policy outcome.
func classify(err error) string {
	var sc statusCarrier
	if errors.As(err, &sc) {
		switch {
		case sc.HTTPStatus() == 429,
			strings.EqualFold(sc.APIStatus(), "RESOURCE_EXHAUSTED"):
			return OutcomeRateLimited
		case sc.HTTPStatus() >= 500:
			return OutcomeRetryable
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return OutcomeRateLimited
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "internal"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "timeout"):
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}
