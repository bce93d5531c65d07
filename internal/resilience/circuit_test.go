package resilience

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	failure := eris.New("provider down")

	for i := 0; i < 2; i++ {
		cb.Record(failure)
		assert.Equal(t, CircuitClosed, cb.State())
	}

	cb.Record(failure)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	failure := eris.New("provider down")

	cb.Record(failure)
	cb.Record(failure)
	cb.Record(nil)
	cb.Record(failure)
	cb.Record(failure)

	assert.Equal(t, CircuitClosed, cb.State(), "a success resets the consecutive-failure count")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	cb.Record(eris.New("provider down"))
	require.Equal(t, CircuitOpen, cb.State())
	require.Error(t, cb.Allow())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.NoError(t, cb.Allow(), "one probe passes after the reset timeout")

	// Successful probe closes the circuit.
	cb.Record(nil)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	cb.Record(eris.New("provider down"))

	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())

	cb.Record(eris.New("still down"))
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestBreakerShouldTripFilter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       IsTransient,
	})

	cb.Record(eris.New("invalid api key"))
	assert.Equal(t, CircuitClosed, cb.State(), "permanent errors never trip the breaker")

	cb.Record(NewTransientError(eris.New("503"), 503))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	cb.Record(eris.New("down"))
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestProviderBreakersIsolation(t *testing.T) {
	pb := NewProviderBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	pb.Get("lusha").Record(eris.New("down"))

	assert.Equal(t, CircuitOpen, pb.Get("lusha").State())
	assert.Equal(t, CircuitClosed, pb.Get("coresignal").State())

	states := pb.States()
	assert.Len(t, states, 2)
	assert.Equal(t, CircuitOpen, states["lusha"])
}
