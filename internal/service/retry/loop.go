// Package retry re-injects orders that are still waiting for a driver.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

// DefaultBatchSize bounds the orders re-published by a single tick.
const DefaultBatchSize = 500

// PendingOrders finds created orders whose next attempt is due.
type PendingOrders interface {
	PendingAssignment(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
}

// Publisher re-publishes OrderCreated.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, e domain.OrderCreatedEvent) error
}

// Config controls the loop schedule.
type Config struct {
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

// Loop periodically scans pending orders and republishes them.
type Loop struct {
	orders    PendingOrders
	publisher Publisher
	cfg       Config
	logger    logx.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewLoop creates a Loop. A non-positive interval is rejected.
func NewLoop(orders PendingOrders, publisher Publisher, cfg Config, logger logx.Logger, m *metrics.Metrics) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("retry interval must be positive, got %s", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if m == nil {
		m = metrics.New()
	}
	return &Loop{
		orders:    orders,
		publisher: publisher,
		cfg:       cfg,
		logger:    logx.Component(logger, "assignment_retry_loop"),
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run ticks on the configured interval until ctx is cancelled. Overlapping
// ticks are skipped rather than queued.
func (l *Loop) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+l.cfg.Interval.String(), func() {
		if _, err := l.Tick(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("retry tick failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule retry loop: %w", err)
	}

	c.Start()
	l.logger.Info("retry loop started", logx.Duration("interval", l.cfg.Interval))

	<-ctx.Done()
	<-c.Stop().Done()
	l.logger.Info("retry loop stopped")
	return nil
}

// Tick re-publishes every order due at now and returns how many were sent.
// A publish failure does not stop the batch; the order stays due and is
// picked up again by the next tick.
func (l *Loop) Tick(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	now := l.now()
	pending, err := l.orders.PendingAssignment(ctx, now, l.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}

	var (
		sent int
		errs []error
	)
	for i := range pending {
		o := &pending[i]
		if err := l.publisher.PublishOrderCreated(ctx, domain.NewOrderCreatedEvent(o)); err != nil {
			errs = append(errs, fmt.Errorf("republish order %s: %w", o.ID, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		sent++
		l.metrics.RetryRepublished.Inc()
		l.logger.Debug("order re-published",
			logx.String("event", "assignment_retry"),
			logx.String("order_id", o.ID),
			logx.Int("retry_count", o.AssignmentRetryCount),
		)
	}

	if len(pending) > 0 {
		l.logger.Info("retry tick done",
			logx.Int("pending", len(pending)),
			logx.Int("republished", sent),
		)
	}
	return sent, errors.Join(errs...)
}
