// Package orders holds the choreography handlers of the assignment streams.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
	"delivery-dispatch/internal/transport/kafka"
)

// maxBookkeepingAttempts bounds the reload-and-retry cycle on version conflicts.
const maxBookkeepingAttempts = 3

// Handlers reacts to orders-created and order-assignment-failed messages.
type Handlers struct {
	assigner  Assigner
	orders    OrderStore
	publisher Publisher
	backoff   domain.Backoff
	logger    logx.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewHandlers creates Handlers.
func NewHandlers(
	assigner Assigner,
	orders OrderStore,
	publisher Publisher,
	backoff domain.Backoff,
	logger logx.Logger,
	m *metrics.Metrics,
) *Handlers {
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Handlers{
		assigner:  assigner,
		orders:    orders,
		publisher: publisher,
		backoff:   backoff,
		logger:    logger.With(logx.String("component", "order_handlers")),
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleOrderCreated attempts assignment for the order.
//
// Re-delivered or re-published messages for orders that already left Created
// are acknowledged without side effects. When no driver can be claimed the
// retry schedule is advanced and an AssignmentFailed event is published.
func (h *Handlers) HandleOrderCreated(ctx context.Context, e domain.OrderCreatedEvent) error {
	res, err := h.assigner.AssignOrder(ctx, e.OrderID)
	switch {
	case err == nil:
		return h.publishAssigned(ctx, res.Order.ID, res.Driver.ID, res.AssignedAt)

	case errors.Is(err, domain.ErrOrderNotAssignable):
		h.logger.Debug("order no longer awaiting a driver, skipping",
			logx.String("order_id", e.OrderID),
			logx.Err(err),
		)
		return nil

	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvalid):
		return kafka.Permanent(err)

	case errors.Is(err, domain.ErrNoAvailableDrivers):
		return h.scheduleRetry(ctx, e.OrderID, err)

	default:
		return fmt.Errorf("assign order %s: %w", e.OrderID, err)
	}
}

// HandleAssignmentFailed records the failure. The retry itself is driven by
// the pending assignment loop, so nothing is pushed to clients.
func (h *Handlers) HandleAssignmentFailed(_ context.Context, e domain.AssignmentFailedEvent) error {
	fields := []logx.Field{
		logx.String("event", "assignment_failed"),
		logx.String("order_id", e.OrderID),
		logx.String("reason", e.Reason),
		logx.Int("retry_count", e.RetryCount),
		logx.Time("failed_at", e.FailedAt),
	}
	if e.NextAttemptAt != nil {
		fields = append(fields, logx.Time("next_attempt_at", *e.NextAttemptAt))
	}
	h.metrics.AssignmentFailures.WithLabelValues(e.Reason).Inc()
	h.logger.Warn("order assignment failed", fields...)
	return nil
}

func (h *Handlers) publishAssigned(ctx context.Context, orderID, driverID string, at time.Time) error {
	ev := domain.DriverAssignedEvent{OrderID: orderID, DriverID: driverID, AssignedAt: at}
	if err := h.publisher.PublishDriverAssigned(ctx, ev); err != nil {
		return fmt.Errorf("publish driver assigned for order %s: %w", orderID, err)
	}
	return nil
}

// scheduleRetry pushes the next attempt forward and announces the failure.
func (h *Handlers) scheduleRetry(ctx context.Context, orderID string, cause error) error {
	var order *domain.Order
	for attempt := 1; ; attempt++ {
		o, err := h.orders.GetByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order %s for retry bookkeeping: %w", orderID, err)
		}
		if o == nil {
			return kafka.Permanent(fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound))
		}
		if !o.AwaitingAssignment() {
			// Assigned concurrently by another attempt.
			return nil
		}

		o.RecordFailedAttempt(h.now(), h.backoff)
		err = h.orders.Update(ctx, o)
		if err == nil {
			order = o
			break
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt >= maxBookkeepingAttempts {
			return fmt.Errorf("record failed attempt for order %s: %w", orderID, err)
		}
	}

	ev := domain.AssignmentFailedEvent{
		OrderID:       order.ID,
		Reason:        reasonOf(cause),
		FailedAt:      *order.LastAssignmentAttempt,
		RetryCount:    order.AssignmentRetryCount,
		NextAttemptAt: order.NextAssignmentAttempt,
	}
	h.logger.Info("assignment deferred",
		logx.String("event", "assignment_deferred"),
		logx.String("order_id", order.ID),
		logx.Int("retry_count", order.AssignmentRetryCount),
		logx.Time("next_attempt_at", *order.NextAssignmentAttempt),
	)
	if err := h.publisher.PublishAssignmentFailed(ctx, ev); err != nil {
		return fmt.Errorf("publish assignment failed for order %s: %w", order.ID, err)
	}
	return nil
}

func reasonOf(err error) string {
	if errors.Is(err, domain.ErrNoAvailableDrivers) {
		return domain.ErrNoAvailableDrivers.Error()
	}
	return err.Error()
}
