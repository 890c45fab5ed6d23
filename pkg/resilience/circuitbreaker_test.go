package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lighttavern/backend/pkg/logger"
)

func testBreaker(retry time.Duration) *CircuitBreaker {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     retry,
	}
	return NewCircuitBreaker(cfg, logger.New(logger.Config{Level: "error"}))
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := testBreaker(time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return boom })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	cb.Execute(func() error { return boom })
	require.NoError(t, cb.Execute(func() error { return nil }))
	cb.Execute(func() error { return boom })

	assert.Equal(t, StateClosed, cb.State())
}
