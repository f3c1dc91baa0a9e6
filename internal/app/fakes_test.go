package app

import (
	"context"
	"sync/atomic"

	"github.com/IBM/sarama"
)

type fakeStream struct {
	topic  string
	runErr error
	ran    atomic.Bool
	closed atomic.Bool
}

func (s *fakeStream) Topic() string { return s.topic }

func (s *fakeStream) Run(ctx context.Context) error {
	s.ran.Store(true)
	if s.runErr != nil {
		return s.runErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeGroup struct {
	closed atomic.Bool
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return nil }

func (g *fakeGroup) Close() error {
	g.closed.Store(true)
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}
