package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("bm25", WithMaxFailures(2), WithResetTimeout(time.Minute), withClock(clock.now))
	fail := func() (int, error) { return 0, errors.New("down") }

	_, _ = Execute(cb, fail)
	assert.Equal(t, StateClosed, cb.State())
	_, _ = Execute(cb, fail)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	_, err := Execute(cb, func() (int, error) {
		called = true
		return 1, nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("bm25", WithMaxFailures(1), WithResetTimeout(time.Second), withClock(clock.now))
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	clock.advance(time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Only one trial call is admitted.
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("bm25", WithMaxFailures(1), WithResetTimeout(time.Second), withClock(clock.now))
	cb.RecordFailure()
	clock.advance(2 * time.Second)

	_, err := Execute(cb, func() (int, error) { return 0, errors.New("still down") })

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("bm25", WithMaxFailures(1))

	_, err := Execute(cb, func() (int, error) { return 0, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	_, err = Execute(cb, func() (int, error) {
		return 0, fmt.Errorf("retrieve: %w", context.DeadlineExceeded)
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledTrialReleasesSlot(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("bm25", WithMaxFailures(1), WithResetTimeout(time.Second), withClock(clock.now))
	cb.RecordFailure()
	clock.advance(time.Second)

	_, _ = Execute(cb, func() (int, error) { return 0, context.Canceled })

	// The trial neither reopened nor closed the circuit; another may run.
	assert.Equal(t, StateHalfOpen, cb.State())
	v, err := Execute(cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("bm25", WithMaxFailures(2))
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "bm25", cb.Name())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
