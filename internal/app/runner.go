package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/transport/kafka"
)

const shutdownTimeout = 15 * time.Second

// Runner runs the API binary.
type Runner struct {
	runFn  func(*dig.Container) error
	fatalf func(string, ...interface{})
}

// NewRunner returns a new Runner.
func NewRunner() *Runner {
	return &Runner{runFn: run, fatalf: log.Fatalf}
}

// MustRun serves HTTP, WebSocket tracking and the tracking streams until the
// container context is cancelled.
func (r *Runner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil {
		return
	}
	logger := containerLogger(container)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown requested, exiting")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("startup aborted: startup timeout exceeded")
	default:
		logger.Error("run error", logx.Err(err))
		if r.fatalf != nil {
			r.fatalf("run error: %v", err)
		}
	}
}

func containerLogger(container *dig.Container) logx.Logger {
	var logger logx.Logger
	if err := container.Invoke(func(l logx.Logger) { logger = l }); err != nil || logger == nil {
		return logx.Nop()
	}
	return logger
}

type apiIn struct {
	dig.In

	Ctx       context.Context
	Logger    logx.Logger
	Server    *http.Server
	Debug     *http.Server `name:"debug_server" optional:"true"`
	Pool      *pgxpool.Pool
	Streams   trackingStreams
	Publisher *kafka.Publisher
}

func run(container *dig.Container) error {
	return container.Invoke(apiRun)
}

func apiRun(in apiIn) error {
	logger := logx.Component(in.Logger, "app")
	defer closeResources(logger, in.Pool, in.Publisher, in.Streams)

	g, ctx := errgroup.WithContext(in.Ctx)
	g.Go(func() error { return serve(ctx, in.Server, logger, "api") })
	if in.Debug != nil {
		g.Go(func() error { return serve(ctx, in.Debug, logger, "debug") })
	}
	g.Go(func() error { return runStreams(ctx, in.Streams) })

	if err := g.Wait(); err != nil {
		return err
	}
	return in.Ctx.Err()
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger logx.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("server listening", logx.String("server", name), logx.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server", logx.String("server", name))
	gracefulShutdown(srv, logger, shutdownTimeout)
	return nil
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("graceful shutdown error", logx.Err(err))
	}
}

func closeResources(logger logx.Logger, pool *pgxpool.Pool, publisher *kafka.Publisher, streams []streamRunner) {
	closeStreams(logger, streams)
	if err := publisher.Close(); err != nil {
		logger.Error("kafka producer close error", logx.Err(err))
	}
	if pool != nil {
		pool.Close()
	}
}
