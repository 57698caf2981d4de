package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	p := Fixed(3, 0)
	p.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	cause := errors.New("connection refused")

	err := Fixed(3, 0).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, cause)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("bad json")

	err := Fixed(3, 0).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Fixed(3, time.Hour).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.Backoff(1))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.Nil(t, Permanent(nil))
}
