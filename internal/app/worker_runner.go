package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/service/retry"
	"delivery-dispatch/internal/transport/kafka"
)

// WorkerRunner runs the assignment worker.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner.
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun consumes the assignment topics and runs the retry loop until the
// container context is cancelled.
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

type workerIn struct {
	dig.In

	Ctx       context.Context
	Logger    logx.Logger
	Pool      *pgxpool.Pool
	Streams   assignmentStreams
	Loop      *retry.Loop
	Publisher *kafka.Publisher
	Debug     *http.Server `name:"debug_server" optional:"true"`
}

var errNoStreams = errors.New("kafka is not configured: worker has no streams to consume")

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(in workerIn) error {
	if len(in.Streams) == 0 {
		return errNoStreams
	}
	logger := logx.Component(in.Logger, "worker")
	defer closeResources(logger, in.Pool, in.Publisher, in.Streams)

	logger.Info("dispatch worker started", logx.Int("streams", len(in.Streams)))

	g, ctx := errgroup.WithContext(in.Ctx)
	g.Go(func() error { return in.Loop.Run(ctx) })
	g.Go(func() error { return runStreams(ctx, in.Streams) })
	if in.Debug != nil {
		g.Go(func() error { return serve(ctx, in.Debug, logger, "debug") })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return in.Ctx.Err()
}
