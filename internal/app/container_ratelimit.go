package app

import (
	"delivery-dispatch/internal/config"
	"delivery-dispatch/internal/http/middleware/ratelimit"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewTokenBucketLimiter(clock, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.RealClock{}
}

func newRateLimitMiddleware(logger logx.Logger, m *metrics.Metrics, limiter ratelimit.Limiter) *ratelimit.Middleware {
	return ratelimit.New(logger, m.RateLimitExceeded, limiter)
}
