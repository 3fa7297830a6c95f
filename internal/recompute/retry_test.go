package recompute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)
	attempts := 0

	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_GivesUp(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond)
	cause := errors.New("still down")

	err := policy.Execute(context.Background(), func(ctx context.Context) error { return cause })

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestRetryPolicy_PermanentStopsImmediately(t *testing.T) {
	policy := NewRetryPolicy(5, time.Millisecond)
	attempts := 0
	cause := errors.New("bad request")

	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsPermanent(err))
}

func TestRetryPolicy_StopsOnContextDone(t *testing.T) {
	policy := NewRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := policy.Execute(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))
}
