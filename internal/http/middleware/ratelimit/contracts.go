package ratelimit

// Limiter decides whether a request keyed by client may proceed.
type Limiter interface {
	Allow(key string) bool
}

// NopLimiter never throttles. It is used when rate limiting is disabled.
type NopLimiter struct{}

// Allow always returns true.
func (NopLimiter) Allow(string) bool { return true }
