package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("index")

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
	assert.Equal(t, "index", cb.Name())
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb := NewCircuitBreaker("index",
		WithMaxFailures(3),
		WithResetTimeout(1*time.Second),
	)

	// When: recording 3 failures
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error {
			return IndexError("upsert failed", nil)
		})
	}

	// Then: circuit is open
	assert.Equal(t, StateOpen, cb.State())

	// And: requests are rejected without running
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.False(t, called, "function must not run while circuit is open")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("index", WithMaxFailures(3))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	// Given: an open circuit breaker
	cb := NewCircuitBreaker("index",
		WithMaxFailures(2),
		WithResetTimeout(50*time.Millisecond),
	)

	// Trip the circuit
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error {
			return IndexError("down", nil)
		})
	}
	require.Equal(t, StateOpen, cb.State())

	// When: waiting for reset timeout
	time.Sleep(60 * time.Millisecond)

	// Then: circuit is half-open and allows a probe
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	// And: a successful probe closes the circuit
	err := cb.Execute(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("index",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond),
	)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(func() error { return IndexError("still down", nil) })

	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitExecuteWithResult_FallbackWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("index", WithMaxFailures(1), WithResetTimeout(time.Minute))
	cb.RecordFailure()

	result, err := CircuitExecuteWithResult(cb,
		func() ([]string, error) { return []string{"primary"}, nil },
		func() ([]string, error) { return []string{"fallback"}, nil },
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, result)
}

func TestCircuitExecuteWithResult_ClosedRunsPrimary(t *testing.T) {
	cb := NewCircuitBreaker("index")

	result, err := CircuitExecuteWithResult(cb,
		func() (int, error) { return 7, nil },
		func() (int, error) { return -1, nil },
	)

	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
