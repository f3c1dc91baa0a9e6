package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

// State is the lifecycle state of a Stream.
type State int32

// Stream states.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Decoder turns a broker message into a typed event.
// Returning an error wrapping ErrMalformedMessage drops the message.
type Decoder[T any] func(*sarama.ConsumerMessage) (T, error)

// HandleFunc processes one decoded event.
type HandleFunc[T any] func(context.Context, T) error

// StreamConfig configures a Stream.
type StreamConfig struct {
	Topic          string
	QueueSize      int
	ErrorDelay     time.Duration
	HandlerTimeout time.Duration
}

// Stream is one consume/process loop pair for a topic.
//
// The consume loop hands every decoded message to a bounded queue and marks
// its offset only after the hand-off, so delivery is at-least-once. The
// process loop invokes the handler for each queued event in arrival order; a
// failing handler is logged and never stops the loop.
type Stream[T any] struct {
	cfg     StreamConfig
	group   sarama.ConsumerGroup
	decode  Decoder[T]
	handle  HandleFunc[T]
	logger  logx.Logger
	metrics *metrics.Metrics

	queue chan queued[T]
	state atomic.Int32
	sleep func(context.Context, time.Duration)
}

type queued[T any] struct {
	event T
	key   string
	at    time.Time
}

// NewStream creates a Stream over an existing consumer group.
func NewStream[T any](
	logger logx.Logger,
	m *metrics.Metrics,
	group sarama.ConsumerGroup,
	cfg StreamConfig,
	decode Decoder[T],
	handle HandleFunc[T],
) (*Stream[T], error) {
	if group == nil {
		return nil, errors.New("kafka stream: nil consumer group")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka stream: empty topic")
	}
	if decode == nil || handle == nil {
		return nil, fmt.Errorf("kafka stream %s: decoder and handler are required", cfg.Topic)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Stream[T]{
		cfg:     cfg,
		group:   group,
		decode:  decode,
		handle:  handle,
		logger:  logger.With(logx.String("component", "stream"), logx.String("topic", cfg.Topic)),
		metrics: m,
		queue:   make(chan queued[T], cfg.QueueSize),
		sleep:   sleepWithContext,
	}, nil
}

// Topic returns the consumed topic.
func (s *Stream[T]) Topic() string { return s.cfg.Topic }

// State returns the current lifecycle state.
func (s *Stream[T]) State() State { return State(s.state.Load()) }

// Run consumes until ctx is cancelled, then drains the queue and returns.
// A Stream can be run once.
func (s *Stream[T]) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("kafka stream %s: already %s", s.cfg.Topic, s.State())
	}
	s.logger.Info("stream started", logx.Int("queue_size", s.cfg.QueueSize))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processLoop(context.WithoutCancel(ctx))
	}()

	s.consumeLoop(ctx)

	s.state.Store(int32(StateDraining))
	s.logger.Info("stream draining", logx.Int("queued", len(s.queue)))
	close(s.queue)
	wg.Wait()

	s.state.Store(int32(StateStopped))
	s.logger.Info("stream stopped")
	return nil
}

// Close releases the consumer group.
func (s *Stream[T]) Close() error {
	return s.group.Close()
}

func (s *Stream[T]) consumeLoop(ctx context.Context) {
	h := &groupHandler[T]{s: s}
	topics := []string{s.cfg.Topic}

	for {
		err := s.group.Consume(ctx, topics, h)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				s.logger.Warn("consumer group closed")
				return
			}
			s.logger.Warn("consume failed, retrying",
				logx.Err(fmt.Errorf("%w: %v", ErrBrokerTransient, err)),
				logx.Duration("delay", s.cfg.ErrorDelay),
			)
			s.sleep(ctx, s.cfg.ErrorDelay)
		}
	}
}

func (s *Stream[T]) processLoop(ctx context.Context) {
	for item := range s.queue {
		s.metrics.QueueDepth.WithLabelValues(s.cfg.Topic).Set(float64(len(s.queue)))
		if err := s.invoke(ctx, item); err != nil {
			if IsPermanent(err) {
				s.metrics.StreamHandled.WithLabelValues(s.cfg.Topic, metrics.ResultDropped).Inc()
				s.logger.Warn("handler rejected message, dropping",
					logx.String("key", item.key),
					logx.Err(err),
				)
				continue
			}
			s.metrics.StreamHandled.WithLabelValues(s.cfg.Topic, metrics.ResultError).Inc()
			s.logger.Error("handler failed, continuing",
				logx.String("key", item.key),
				logx.Time("produced_at", item.at),
				logx.Err(err),
				logx.Duration("delay", s.cfg.ErrorDelay),
			)
			s.sleep(ctx, s.cfg.ErrorDelay)
			continue
		}
		s.metrics.StreamHandled.WithLabelValues(s.cfg.Topic, metrics.ResultOK).Inc()
	}
	s.metrics.QueueDepth.WithLabelValues(s.cfg.Topic).Set(0)
}

func (s *Stream[T]) invoke(ctx context.Context, item queued[T]) (err error) {
	if s.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return s.handle(ctx, item.event)
}

// enqueue blocks until the event is queued or the session ends.
func (s *Stream[T]) enqueue(ctx context.Context, item queued[T]) bool {
	select {
	case s.queue <- item:
		s.metrics.StreamConsumed.WithLabelValues(s.cfg.Topic).Inc()
		s.metrics.QueueDepth.WithLabelValues(s.cfg.Topic).Set(float64(len(s.queue)))
		return true
	case <-ctx.Done():
		return false
	}
}

type groupHandler[T any] struct{ s *Stream[T] }

func (h *groupHandler[T]) Setup(sess sarama.ConsumerGroupSession) error {
	h.s.logger.Debug("session setup", logx.String("member_id", sess.MemberID()))
	return nil
}

func (h *groupHandler[T]) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler[T]) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			ev, err := h.s.decode(msg)
			if err != nil {
				h.s.metrics.StreamHandled.WithLabelValues(h.s.cfg.Topic, metrics.ResultDropped).Inc()
				h.s.logger.Warn("kafka malformed message, dropping",
					logx.Int("partition", int(msg.Partition)),
					logx.Int64("offset", msg.Offset),
					logx.Err(err),
				)
				sess.MarkMessage(msg, "")
				continue
			}
			if !h.s.enqueue(ctx, queued[T]{event: ev, key: string(msg.Key), at: msg.Timestamp}) {
				// not handed off; the offset stays uncommitted and the message is redelivered.
				return nil
			}
			sess.MarkMessage(msg, "")
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
