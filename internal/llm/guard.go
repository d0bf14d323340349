package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// GuardConfig sizes the fortify layers around a provider. A zero field
// turns its layer off.
type GuardConfig struct {
	// RatePerSecond caps welcome generations per second.
	RatePerSecond int
	// TripAfter opens the circuit after this many consecutive failures.
	TripAfter int
	// MaxAttempts includes the first call; 1 or less disables retry.
	MaxAttempts int
	RetryDelay  time.Duration
	// MaxConcurrent bounds in-flight calls; twice as many may queue.
	MaxConcurrent int

	Logger *slog.Logger
}

// DefaultGuardConfig is sized for one welcome per completed onboarding.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RatePerSecond: 2,
		TripAfter:     3,
		MaxAttempts:   3,
		RetryDelay:    time.Second,
		MaxConcurrent: 4,
	}
}

// Guard is a Provider wrapped in rate limit, circuit breaker, retry and
// bulkhead, applied in that order.
type Guard struct {
	provider Provider
	limiter  ratelimit.RateLimiter
	breaker  circuitbreaker.CircuitBreaker[Completion]
	retrier  retry.Retry[Completion]
	bulkhead bulkhead.Bulkhead[Completion]
	logger   *slog.Logger
}

func NewGuard(provider Provider, cfg GuardConfig) *Guard {
	g := &Guard{provider: provider, logger: cfg.Logger}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	if cfg.RatePerSecond > 0 {
		g.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RatePerSecond,
			Burst:    cfg.RatePerSecond * 3,
			Interval: time.Second,
		})
	}

	if cfg.TripAfter > 0 {
		trip := uint32(cfg.TripAfter)
		g.breaker = circuitbreaker.New[Completion](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(c circuitbreaker.Counts) bool {
				return c.ConsecutiveFailures >= trip
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				g.logger.Warn("welcome provider circuit changed",
					"provider", provider.Name(),
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.MaxAttempts > 1 {
		delay := cfg.RetryDelay
		if delay <= 0 {
			delay = time.Second
		}
		g.retrier = retry.New[Completion](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  delay,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		})
	}

	if cfg.MaxConcurrent > 0 {
		g.bulkhead = bulkhead.New[Completion](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	return g
}

func (g *Guard) Name() string { return g.provider.Name() }

func (g *Guard) Generate(ctx context.Context, p Prompt) (Completion, error) {
	if g.limiter != nil && !g.limiter.Allow(ctx, g.provider.Name()) {
		return Completion{}, fmt.Errorf("%w for provider %s", ErrRateLimited, g.provider.Name())
	}

	call := func(ctx context.Context) (Completion, error) {
		return g.provider.Generate(ctx, p)
	}
	if g.bulkhead != nil {
		inner := call
		call = func(ctx context.Context) (Completion, error) {
			return g.bulkhead.Execute(ctx, inner)
		}
	}
	if g.retrier != nil {
		inner := call
		call = func(ctx context.Context) (Completion, error) {
			return g.retrier.Do(ctx, inner)
		}
	}
	if g.breaker != nil {
		return g.breaker.Execute(ctx, call)
	}
	return call(ctx)
}

// Close stops the rate limiter's background refill.
func (g *Guard) Close() error {
	if g.limiter != nil {
		return g.limiter.Close()
	}
	return nil
}
