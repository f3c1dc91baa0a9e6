package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"delivery-dispatch/internal/config"
	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/logx"
)

// ErrPublisherDisabled is returned when no broker is configured.
var ErrPublisherDisabled = errors.New("kafka publisher is not configured")

// Publisher emits dispatch events keyed by the owning entity id, so that
// all messages of one order or driver land on the same partition.
//
// A failed send is repeated with backoff: events follow state that is already
// committed, and nothing else would re-emit them.
type Publisher struct {
	producer sarama.SyncProducer
	topics   config.Topics
	logger   logx.Logger
	now      func() time.Time

	attempts int
	backoff  domain.Backoff
	pause    func(context.Context, time.Duration)
}

// Default send retry policy.
const defaultPublishAttempts = 4

var defaultPublishBackoff = domain.Backoff{Base: 250 * time.Millisecond, Max: 2 * time.Second}

// NewPublisher creates a Publisher. A nil producer yields a publisher that
// rejects every call with ErrPublisherDisabled.
func NewPublisher(logger logx.Logger, producer sarama.SyncProducer, topics config.Topics) *Publisher {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Publisher{
		producer: producer,
		topics:   topics,
		logger:   logger.With(logx.String("component", "publisher")),
		now:      time.Now,
		attempts: defaultPublishAttempts,
		backoff:  defaultPublishBackoff,
		pause:    sleepWithContext,
	}
}

// WithRetry sets how many times a send is tried and the wait between tries.
func (p *Publisher) WithRetry(attempts int, b domain.Backoff) *Publisher {
	if attempts > 0 {
		p.attempts = attempts
	}
	p.backoff = b
	return p
}

// PublishOrderCreated publishes to the orders-created topic keyed by order id.
func (p *Publisher) PublishOrderCreated(ctx context.Context, e domain.OrderCreatedEvent) error {
	return p.send(ctx, p.topics.OrderCreated, e.OrderID, toOrderCreatedDTO(e))
}

// PublishDriverAssigned publishes to the drivers-assigned topic keyed by order id.
func (p *Publisher) PublishDriverAssigned(ctx context.Context, e domain.DriverAssignedEvent) error {
	return p.send(ctx, p.topics.DriverAssigned, e.OrderID, toDriverAssignedDTO(e))
}

// PublishAssignmentFailed publishes to the assignment-failed topic keyed by order id.
func (p *Publisher) PublishAssignmentFailed(ctx context.Context, e domain.AssignmentFailedEvent) error {
	return p.send(ctx, p.topics.AssignmentFailed, e.OrderID, toAssignmentFailedDTO(e))
}

// PublishDriverLocation publishes to the location topic keyed by driver id.
func (p *Publisher) PublishDriverLocation(ctx context.Context, e domain.DriverLocationUpdate) error {
	return p.send(ctx, p.topics.LocationUpdate, e.DriverID, toDriverLocationDTO(e))
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func (p *Publisher) send(ctx context.Context, topic, key string, payload any) error {
	if p.producer == nil {
		return ErrPublisherDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}

	var (
		partition int32
		offset    int64
	)
	for attempt := 1; ; attempt++ {
		partition, offset, err = p.producer.SendMessage(&sarama.ProducerMessage{
			Topic:     topic,
			Key:       sarama.StringEncoder(key),
			Value:     sarama.ByteEncoder(b),
			Timestamp: p.now(),
		})
		if err == nil {
			break
		}
		if attempt >= p.attempts {
			return fmt.Errorf("%w: publish to %s after %d attempts: %v", ErrBrokerTransient, topic, attempt, err)
		}
		delay := p.backoff.Delay(attempt)
		p.logger.Warn("publish failed, retrying",
			logx.String("topic", topic),
			logx.String("key", key),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		p.pause(ctx, delay)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: publish to %s: %v (%v)", ErrBrokerTransient, topic, err, ctxErr)
		}
	}
	p.logger.Debug("message published",
		logx.String("topic", topic),
		logx.String("key", key),
		logx.Int("partition", int(partition)),
		logx.Int64("offset", offset),
	)
	return nil
}
