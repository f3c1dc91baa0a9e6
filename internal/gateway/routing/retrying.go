package routing

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/logx"
)

type provider interface {
	Route(ctx context.Context, from, to geo.Point) (Route, error)
}

type counter interface {
	Inc()
}

// RetryConfig controls RetryingGateway.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryingGateway retries throttled, failing or timed out provider calls
// with capped exponential backoff.
type RetryingGateway struct {
	next    provider
	logger  logx.Logger
	retries counter
	cfg     RetryConfig
	sleep   func(context.Context, time.Duration) bool
}

// NewRetryingGateway wraps next. It returns nil if next is nil.
func NewRetryingGateway(next provider, logger logx.Logger, retries counter, cfg RetryConfig) *RetryingGateway {
	if next == nil {
		return nil
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryingGateway{
		next:    next,
		logger:  logx.Component(logger, "routing_gateway"),
		retries: retries,
		cfg:     cfg,
		sleep:   sleepWithContext,
	}
}

// Route calls the provider until it succeeds, fails permanently or attempts run out.
func (g *RetryingGateway) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		r, err := g.next.Route(ctx, from, to)
		if err == nil {
			return r, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == g.cfg.MaxAttempts || !isRetryable(err) {
			break
		}

		delay := backoff(g.cfg.BaseDelay, g.cfg.MaxDelay, attempt)
		if g.retries != nil {
			g.retries.Inc()
		}
		g.logger.Warn("routing provider retry",
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if !g.sleep(ctx, delay) {
			break
		}
	}
	return Route{}, lastErr
}

// isRetryable accepts 429, 5xx and network timeouts.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
