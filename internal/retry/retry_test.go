package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	const bound = 3
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: bound}, func(ctx context.Context) error {
		calls++
		if calls < bound {
			return Transient(errors.New("slow down"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, bound, attempts)
	assert.Equal(t, bound, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	cause := errors.New("service unavailable")
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 4}, func(ctx context.Context) error {
		calls++
		return Transient(cause)
	})

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 4, exhausted.Attempts)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	cause := errors.New("access denied")
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return cause
	})

	assert.Equal(t, cause, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoCustomClassifier(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{
		MaxAttempts: 2,
		Retryable:   func(error) bool { return true },
	}, func(ctx context.Context) error {
		calls++
		return errors.New("anything")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoAttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{
		MaxAttempts:    3,
		AttemptTimeout: 10 * time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("boom"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.Equal(t, time.Duration(0), Policy{}.delay(3))
}
