// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBlip = errors.New("blip")

func alwaysTransient(error) bool { return true }

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	r := New(fastPolicy(3), zaptest.NewLogger(t))
	calls := 0
	stats, err := r.Do(context.Background(), "connect", alwaysTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBlip
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, Stats{Attempts: 3}, stats)
}

func TestDoExhaustsBudget(t *testing.T) {
	r := New(fastPolicy(3), nil)
	calls := 0
	stats, err := r.Do(context.Background(), "connect", alwaysTransient, func(context.Context) error {
		calls++
		return errBlip
	})
	require.ErrorIs(t, err, errBlip)
	assert.Equal(t, 3, calls)
	assert.True(t, stats.Exhausted)
	assert.Equal(t, 3, stats.Attempts)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("permission denied")
	r := New(fastPolicy(5), nil)
	calls := 0
	stats, err := r.Do(context.Background(), "publish", func(err error) bool { return err != permanent }, func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.False(t, stats.Exhausted)
}

func TestDoTreatsAttemptTimeoutAsTransient(t *testing.T) {
	r := New(fastPolicy(2).WithTimeout(5*time.Millisecond), nil)
	calls := 0
	stats, err := r.Do(context.Background(), "vault", nil, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return errors.New("read interrupted")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
	assert.True(t, stats.Exhausted)
}

func TestDoStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(Policy{MaxAttempts: 10, BaseDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour}, nil)
	calls := 0
	done := make(chan struct{})
	var stats Stats
	var err error
	go func() {
		defer close(done)
		stats, err = r.Do(ctx, "connect", alwaysTransient, func(context.Context) error {
			calls++
			return errBlip
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.False(t, stats.Exhausted)
}

func TestBackoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4))
}
