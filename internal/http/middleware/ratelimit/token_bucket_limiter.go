package ratelimit

import (
	"sync"
	"time"

	"delivery-dispatch/internal/cache"
)

// idleForever keeps buckets when no TTL is configured.
const idleForever = 100 * 365 * 24 * time.Hour

// Config stores TokenBucketLimiter settings.
type Config struct {
	Rate       float64       // tokens per second
	Burst      int           // bucket capacity
	TTL        time.Duration // idle buckets are dropped after this long, 0 keeps them
	MaxBuckets int           // new keys are rejected once this many buckets exist, 0 is unbounded
}

// TokenBucketLimiter is a per-key token bucket limiter. Buckets live in a TTL
// cache so idle keys are forgotten.
type TokenBucketLimiter struct {
	cfg     Config
	clock   Clock
	buckets *cache.TTL[string, *bucket]
}

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewTokenBucketLimiter creates a limiter with an injected clock.
func NewTokenBucketLimiter(clock Clock, cfg Config) *TokenBucketLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxBuckets < 0 {
		cfg.MaxBuckets = 0
	}
	sweep := time.Minute
	if half := cfg.TTL / 2; half > sweep {
		sweep = half
	}
	return &TokenBucketLimiter{
		cfg:     cfg,
		clock:   clock,
		buckets: cache.NewTTL[string, *bucket](clock, sweep, cfg.MaxBuckets),
	}
}

// NewTokenBucketPerWindow allows limit requests per window with burst equal to limit.
func NewTokenBucketPerWindow(clock Clock, limit int, window time.Duration, ttl time.Duration) *TokenBucketLimiter {
	if window <= 0 {
		window = time.Second
	}
	if limit <= 0 {
		limit = 1
	}
	return NewTokenBucketLimiter(clock, Config{
		Rate:  float64(limit) / window.Seconds(),
		Burst: limit,
		TTL:   ttl,
	})
}

// Allow takes a token from key's bucket. Unknown keys are rejected when the
// bucket table is full.
func (l *TokenBucketLimiter) Allow(key string) bool {
	now := l.clock.Now()
	ttl := l.cfg.TTL
	if ttl <= 0 {
		ttl = idleForever
	}
	b, ok := l.buckets.GetOrCreate(key, ttl, func() *bucket {
		return &bucket{tokens: float64(l.cfg.Burst), last: now}
	})
	if !ok {
		return false
	}
	return b.take(now, l.cfg.Rate, float64(l.cfg.Burst))
}

// Buckets returns the number of tracked keys.
func (l *TokenBucketLimiter) Buckets() int {
	return l.buckets.Len()
}

func (b *bucket) take(now time.Time, rate, burst float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dt := now.Sub(b.last); dt > 0 {
		b.tokens += dt.Seconds() * rate
		if b.tokens > burst {
			b.tokens = burst
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
