package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/metrics"
	testlog "delivery-dispatch/internal/testutil"
)

func orderCreatedMsg(t *testing.T, offset int64, orderID string) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(OrderCreatedDTO{OrderID: orderID, Lat: 37.7749, Lon: -122.4194})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "orders-created", Key: []byte(orderID), Value: b, Offset: offset}
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
	gate chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, e domain.OrderCreatedEvent) error {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, e.OrderID)
	if err, ok := h.fail[e.OrderID]; ok {
		return err
	}
	return nil
}

func (h *recordingHandler) Seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func newTestStream(t *testing.T, g *fakeGroup, h *recordingHandler, queue int) (*Stream[domain.OrderCreatedEvent], *testlog.Recorder, *metrics.Metrics) {
	t.Helper()
	rec := testlog.New()
	m := metrics.New()
	s, err := NewStream(rec.Logger(), m, g, StreamConfig{
		Topic:      "orders-created",
		QueueSize:  queue,
		ErrorDelay: time.Millisecond,
	}, DecodeOrderCreated, h.Handle)
	require.NoError(t, err)
	s.sleep = func(context.Context, time.Duration) {}
	return s, rec, m
}

func runStream(s *Stream[domain.OrderCreatedEvent]) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return cancel, done
}

func TestNewStream_Validation(t *testing.T) {
	h := &recordingHandler{}

	_, err := NewStream[domain.OrderCreatedEvent](nil, nil, nil, StreamConfig{Topic: "t"}, DecodeOrderCreated, h.Handle)
	require.Error(t, err)

	_, err = NewStream(nil, nil, &fakeGroup{}, StreamConfig{Topic: "  "}, DecodeOrderCreated, h.Handle)
	require.Error(t, err)

	_, err = NewStream[domain.OrderCreatedEvent](nil, nil, &fakeGroup{}, StreamConfig{Topic: "t"}, DecodeOrderCreated, nil)
	require.Error(t, err)
}

func TestStream_ProcessesInArrivalOrderAndMarks(t *testing.T) {
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- orderCreatedMsg(t, 1, "o-1")
	ch <- orderCreatedMsg(t, 2, "o-2")
	ch <- orderCreatedMsg(t, 3, "o-3")
	close(ch)

	g := &fakeGroup{claim: fakeClaim{ch: ch}}
	h := &recordingHandler{}
	s, _, m := newTestStream(t, g, h, 8)

	cancel, done := runStream(s)
	require.Eventually(t, func() bool { return len(h.Seen()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, StateRunning, s.State())

	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []string{"o-1", "o-2", "o-3"}, h.Seen())
	require.Equal(t, []int64{1, 2, 3}, g.Session(0).Marked())
	require.Equal(t, StateStopped, s.State())
	require.InDelta(t, 3, testutil.ToFloat64(m.StreamConsumed.WithLabelValues("orders-created")), 1e-9)
	require.InDelta(t, 3, testutil.ToFloat64(m.StreamHandled.WithLabelValues("orders-created", metrics.ResultOK)), 1e-9)
}

func TestStream_MalformedIsDroppedAndMarked(t *testing.T) {
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- &sarama.ConsumerMessage{Value: []byte("not-json"), Offset: 1}
	ch <- orderCreatedMsg(t, 2, "   ")
	ch <- orderCreatedMsg(t, 3, "o-3")
	close(ch)

	g := &fakeGroup{claim: fakeClaim{ch: ch}}
	h := &recordingHandler{}
	s, rec, m := newTestStream(t, g, h, 8)

	cancel, done := runStream(s)
	require.Eventually(t, func() bool { return len(h.Seen()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []string{"o-3"}, h.Seen())
	require.Equal(t, []int64{1, 2, 3}, g.Session(0).Marked())
	require.Len(t, rec.ByMsg("kafka malformed message, dropping"), 2)
	require.InDelta(t, 2, testutil.ToFloat64(m.StreamHandled.WithLabelValues("orders-created", metrics.ResultDropped)), 1e-9)
}

func TestStream_HandlerErrorDoesNotStopLoop(t *testing.T) {
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- orderCreatedMsg(t, 1, "poison")
	ch <- orderCreatedMsg(t, 2, "rejected")
	ch <- orderCreatedMsg(t, 3, "o-3")
	close(ch)

	g := &fakeGroup{claim: fakeClaim{ch: ch}}
	h := &recordingHandler{fail: map[string]error{
		"poison":   errors.New("db down"),
		"rejected": Permanent(errors.New("bad order")),
	}}
	s, rec, m := newTestStream(t, g, h, 8)

	cancel, done := runStream(s)
	require.Eventually(t, func() bool { return len(h.Seen()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Len(t, rec.ByMsg("handler failed, continuing"), 1)
	require.Len(t, rec.ByMsg("handler rejected message, dropping"), 1)
	require.InDelta(t, 1, testutil.ToFloat64(m.StreamHandled.WithLabelValues("orders-created", metrics.ResultError)), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(m.StreamHandled.WithLabelValues("orders-created", metrics.ResultOK)), 1e-9)
}

func TestStream_HandlerPanicIsRecovered(t *testing.T) {
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- orderCreatedMsg(t, 1, "boom")
	ch <- orderCreatedMsg(t, 2, "o-2")
	close(ch)

	g := &fakeGroup{claim: fakeClaim{ch: ch}}
	var (
		mu   sync.Mutex
		seen []string
	)
	rec := testlog.New()
	s, err := NewStream(rec.Logger(), nil, g, StreamConfig{Topic: "orders-created", QueueSize: 4},
		DecodeOrderCreated,
		func(_ context.Context, e domain.OrderCreatedEvent) error {
			if e.OrderID == "boom" {
				panic("unexpected")
			}
			mu.Lock()
			seen = append(seen, e.OrderID)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	s.sleep = func(context.Context, time.Duration) {}

	cancel, done := runStream(s)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Len(t, rec.ByMsg("handler failed, continuing"), 1)
}

func TestStream_CancelDrainsQueuedMessages(t *testing.T) {
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- orderCreatedMsg(t, 1, "o-1")
	ch <- orderCreatedMsg(t, 2, "o-2")
	ch <- orderCreatedMsg(t, 3, "o-3")
	close(ch)

	g := &fakeGroup{claim: fakeClaim{ch: ch}}
	h := &recordingHandler{gate: make(chan struct{})}
	s, _, _ := newTestStream(t, g, h, 8)

	cancel, done := runStream(s)
	require.Eventually(t, func() bool {
		sess := g.Session(0)
		return sess != nil && len(sess.Marked()) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return s.State() == StateDraining }, time.Second, 5*time.Millisecond)

	close(h.gate)
	require.NoError(t, <-done)
	require.Equal(t, []string{"o-1", "o-2", "o-3"}, h.Seen())
	require.Equal(t, StateStopped, s.State())
}

func TestConsumeClaim_FullQueueDoesNotMarkOnCancel(t *testing.T) {
	h := &recordingHandler{}
	s, _, _ := newTestStream(t, &fakeGroup{}, h, 1)

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- orderCreatedMsg(t, 1, "o-1")
	ch <- orderCreatedMsg(t, 2, "o-2")

	ctx, cancel := context.WithCancel(context.Background())
	sess := &fakeSession{ctx: ctx}
	done := make(chan error, 1)
	go func() { done <- (&groupHandler[domain.OrderCreatedEvent]{s: s}).ConsumeClaim(sess, fakeClaim{ch: ch}) }()

	require.Eventually(t, func() bool { return len(sess.Marked()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []int64{1}, sess.Marked(), "message that never reached the queue must stay uncommitted")
}

func TestStream_ConsumeErrorRetries(t *testing.T) {
	g := &fakeGroup{errs: []error{errors.New("broker down"), errors.New("still down")}}
	h := &recordingHandler{}
	s, rec, _ := newTestStream(t, g, h, 1)

	var slept int
	var mu sync.Mutex
	s.sleep = func(context.Context, time.Duration) {
		mu.Lock()
		slept++
		mu.Unlock()
	}

	cancel, done := runStream(s)
	require.Eventually(t, func() bool { return g.Calls() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	require.Equal(t, 2, slept)
	mu.Unlock()

	warns := rec.ByMsg("consume failed, retrying")
	require.Len(t, warns, 2)
	v, ok := warns[0].Field("err")
	require.True(t, ok)
	require.Contains(t, v, ErrBrokerTransient.Error())
}

func TestStream_ClosedGroupStops(t *testing.T) {
	g := &fakeGroup{errs: []error{sarama.ErrClosedConsumerGroup}}
	s, _, _ := newTestStream(t, g, &recordingHandler{}, 1)

	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, StateStopped, s.State())
}

func TestStream_RunTwice(t *testing.T) {
	g := &fakeGroup{errs: []error{sarama.ErrClosedConsumerGroup}}
	s, _, _ := newTestStream(t, g, &recordingHandler{}, 1)

	require.NoError(t, s.Run(context.Background()))
	require.Error(t, s.Run(context.Background()))
}

func TestState_String(t *testing.T) {
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "draining", StateDraining.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "unknown", State(42).String())
}
