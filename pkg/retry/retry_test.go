package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false

	sentinel := errors.New("persistent")
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts)
}

func TestRetryDisabledRunsOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	attempts := 0
	_ = Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("nope")
	})
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, cfg, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}
