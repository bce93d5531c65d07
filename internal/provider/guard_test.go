package provider

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/resilience"
)

func fastGuard(name string, breaker *resilience.CircuitBreaker) *Guard {
	g := NewGuard(name, GuardConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		Timeout:           time.Second,
		MaxAttempts:       2,
	}, breaker)
	g.retry.InitialBackoff = time.Millisecond
	g.retry.MaxBackoff = 5 * time.Millisecond
	return g
}

func TestGuardedPassesThroughSuccess(t *testing.T) {
	g := fastGuard("test", nil)

	val, err := guarded(context.Background(), g, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestGuardedRetriesTransient(t *testing.T) {
	g := fastGuard("test", nil)

	calls := 0
	val, err := guarded(context.Background(), g, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, resilience.NewTransientError(eris.New("503"), 503)
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, 2, calls)
}

func TestGuardedWrapsExhaustedTransientAsUnavailable(t *testing.T) {
	g := fastGuard("lusha", nil)

	_, err := guarded(context.Background(), g, func(ctx context.Context) (int, error) {
		return 0, resilience.NewTransientError(eris.New("503"), 503)
	})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "exhausted retries must scope the outage to the provider")
}

func TestGuardedOpenBreakerShortCircuits(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	})
	breaker.Record(eris.New("down"))
	g := fastGuard("lusha", breaker)

	calls := 0
	_, err := guarded(context.Background(), g, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Zero(t, calls, "an open breaker must not spend a provider call")
}

func TestGuardedNotFoundDoesNotTripBreaker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	})
	g := fastGuard("coresignal", breaker)

	_, err := guarded(context.Background(), g, func(ctx context.Context) (int, error) {
		return 0, ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, resilience.CircuitClosed, breaker.State(),
		"a missing record says nothing about provider health")
}

func TestGuardedPermanentErrorPassesThrough(t *testing.T) {
	g := fastGuard("test", nil)

	calls := 0
	_, err := guarded(context.Background(), g, func(ctx context.Context) (int, error) {
		calls++
		return 0, eris.New("invalid api key")
	})
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))
	assert.Equal(t, 1, calls)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get(NameLusha))

	a := &CoreSignalAdapter{}
	r.Register(a)

	assert.Equal(t, a, r.Get(NameCoreSignal))
	assert.Equal(t, []string{NameCoreSignal}, r.List())
}
