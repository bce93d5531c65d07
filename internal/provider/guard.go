package provider

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/adrata/intel-engine/internal/resilience"
)

// GuardConfig tunes the call guard shared by all adapters.
type GuardConfig struct {
	// RequestsPerSecond and Burst bound the adapter's request rate to respect
	// the provider's external limits.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`

	// Timeout bounds each individual call attempt.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxAttempts caps retries on rate limits and transient failures.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// DefaultGuardConfig returns conservative adapter limits.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond: 5,
		Burst:             5,
		Timeout:           20 * time.Second,
		MaxAttempts:       3,
	}
}

// Guard wraps every adapter call with a provider rate limiter, a circuit
// breaker, bounded per-attempt timeouts, and capped retries. RateLimited
// responses are retried after the provider-specified delay; a provider whose
// breaker is open, or that stays down through all retries, surfaces as
// UnavailableError so the waterfall skips it and continues.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewGuard creates a guard for the named provider.
func NewGuard(name string, cfg GuardConfig, breaker *resilience.CircuitBreaker) *Guard {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	retryCfg.OnRetry = resilience.RetryLogger(name, "call")

	return &Guard{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: breaker,
		retry:   retryCfg,
		timeout: cfg.Timeout,
	}
}

// guarded runs fn under the guard. fn must already translate provider status
// codes into resilience/provider error types.
func guarded[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return zero, &UnavailableError{Provider: g.name, Err: err}
		}
	}

	val, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
		if waitErr := g.limiter.Wait(ctx); waitErr != nil {
			return zero, waitErr
		}
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(attemptCtx)
	})

	if g.breaker != nil {
		// NotFound and caller cancellation say nothing about provider health.
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			g.breaker.Record(nil)
		} else {
			g.breaker.Record(err)
		}
	}

	if err != nil && ctx.Err() == nil && resilience.IsTransient(err) {
		// Retries exhausted on a transient failure: scope it to the provider.
		return zero, &UnavailableError{Provider: g.name, Err: err}
	}
	return val, err
}
