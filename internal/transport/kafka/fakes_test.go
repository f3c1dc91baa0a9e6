package kafka

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
)

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }

func (s *fakeSession) Marked() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c fakeClaim) Topic() string              { return "t" }
func (c fakeClaim) Partition() int32           { return 0 }
func (c fakeClaim) InitialOffset() int64       { return 0 }
func (c fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage {
	return c.ch
}

// fakeGroup serves one claim in the first successful session and then idles until
// the context is cancelled, like a consumer group with no new data.
type fakeGroup struct {
	claim fakeClaim

	mu       sync.Mutex
	calls    int
	errs     []error
	sessions []*fakeSession
	closed   bool
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, h sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	var err error
	if len(g.errs) > 0 {
		err, g.errs = g.errs[0], g.errs[1:]
	}
	g.mu.Unlock()

	if err != nil {
		return err
	}

	sess := &fakeSession{ctx: ctx}
	g.mu.Lock()
	g.sessions = append(g.sessions, sess)
	first := len(g.sessions) == 1
	g.mu.Unlock()

	if err := h.Setup(sess); err != nil {
		return err
	}
	if first && g.claim.ch != nil {
		if err := h.ConsumeClaim(sess, g.claim); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return h.Cleanup(sess)
}

func (g *fakeGroup) Errors() <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}

func (g *fakeGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func (g *fakeGroup) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGroup) Session(i int) *fakeSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i >= len(g.sessions) {
		return nil
	}
	return g.sessions[i]
}
