// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package retry runs network-bound operations with a bounded number of attempts
// and exponential backoff. Each attempt may carry its own timeout; an attempt that
// times out counts as a transient failure and consumes one attempt.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// maxBackoff caps any single backoff delay regardless of policy.
const maxBackoff = 60 * time.Second

// Policy describes how many times and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Timeout bounds a single attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultPolicy returns the policy used when the run config leaves retry unset.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// normalized fills zero or invalid fields with safe values.
func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if p.MaxDelay <= 0 || p.MaxDelay > maxBackoff {
		p.MaxDelay = maxBackoff
	}
	return p
}

// WithTimeout returns a copy of p with the per-attempt timeout set.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

// Backoff returns the delay before the retry that follows the given zero-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	backoff := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	return backoff
}

// Stats reports how an operation went through its attempt budget.
type Stats struct {
	Attempts  int
	Exhausted bool
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Retrier executes operations under one policy.
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// New creates a Retrier. A nil logger disables logging.
func New(p Policy, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: p.normalized(), logger: logger}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs fn until it succeeds, returns an error that transient does not accept,
// or the attempt budget runs out. The last error is returned unchanged.
//
// When the policy has a Timeout, fn receives a context bounded by it; an attempt that
// hits that deadline while ctx is still live is treated as transient.
func (r *Retrier) Do(ctx context.Context, op string, transient Classifier, fn func(ctx context.Context) error) (Stats, error) {
	log := r.logger.With(zap.String("operation", op))
	var stats Stats

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if attempt > 0 {
			log.Info("retrying", zap.Int("attempt", attempt+1), zap.Int("max_attempts", r.policy.MaxAttempts))
		}

		stats.Attempts++
		err := r.attempt(ctx, fn)
		if err == nil {
			if attempt > 0 {
				log.Info("succeeded after retry", zap.Int("attempts", stats.Attempts))
			}
			return stats, nil
		}

		// A cancelled parent ends the loop no matter how the attempt failed.
		if ctx.Err() != nil {
			return stats, err
		}

		timedOut := errors.Is(err, context.DeadlineExceeded)
		if !timedOut && (transient == nil || !transient(err)) {
			return stats, err
		}

		log.Warn("attempt failed", zap.Int("attempt", stats.Attempts), zap.Bool("timeout", timedOut), zap.Error(err))

		if stats.Attempts >= r.policy.MaxAttempts {
			stats.Exhausted = true
			log.Warn("giving up", zap.Int("attempts", stats.Attempts))
			return stats, err
		}

		delay := r.policy.Backoff(attempt)
		log.Debug("backing off", zap.Int64("delay_ms", delay.Milliseconds()))
		if err := sleep(ctx, delay); err != nil {
			return stats, err
		}
	}
	// unreachable with MaxAttempts >= 1
	return stats, nil
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.policy.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()
	err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
		// Drivers do not always wrap the deadline; make the timeout visible to Do.
		return &timeoutError{err: err}
	}
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type timeoutError struct{ err error }

func (e *timeoutError) Error() string { return "attempt timed out: " + e.err.Error() }
func (e *timeoutError) Unwrap() []error {
	return []error{e.err, context.DeadlineExceeded}
}
