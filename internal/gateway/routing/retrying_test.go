package routing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"delivery-dispatch/internal/geo"
	testlog "delivery-dispatch/internal/testutil"
)

type fakeProvider struct {
	routeFn func(context.Context, geo.Point, geo.Point) (Route, error)
}

func (f *fakeProvider) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	return f.routeFn(ctx, from, to)
}

type counterStub struct{ n int64 }

func (c *counterStub) Inc() { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 {
	return atomic.LoadInt64(&c.n)
}

var (
	from = geo.Point{Lat: 55.7558, Lon: 37.6173}
	to   = geo.Point{Lat: 55.7600, Lon: 37.6200}
)

func TestRetryingGateway_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeProvider{
		routeFn: func(context.Context, geo.Point, geo.Point) (Route, error) {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				return Route{}, &StatusError{Code: 503}
			case 2:
				return Route{}, &StatusError{Code: 429}
			default:
				return Route{DistanceM: 420}, nil
			}
		},
	}
	ctr := &counterStub{}
	g := NewRetryingGateway(next, rec.Logger(), ctr, RetryConfig{MaxAttempts: 5})
	if g == nil {
		t.Fatalf("expected non-nil gw")
	}

	got, err := g.Route(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.DistanceM != 420 {
		t.Fatalf("unexpected route: %#v", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if ctr.Count() != 2 {
		t.Fatalf("expected 2 retries, got %d", ctr.Count())
	}
	if n := len(rec.ByMsg("routing provider retry")); n != 2 {
		t.Fatalf("expected 2 retry log lines, got %d", n)
	}
}

func TestRetryingGateway_NoRetryOnNonRetryable(t *testing.T) {
	t.Parallel()

	for name, failure := range map[string]error{
		"bad request": &StatusError{Code: 400},
		"no route":    ErrNoRoute,
	} {
		failure := failure
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls int32
			next := &fakeProvider{
				routeFn: func(context.Context, geo.Point, geo.Point) (Route, error) {
					atomic.AddInt32(&calls, 1)
					return Route{}, failure
				},
			}
			ctr := &counterStub{}
			g := NewRetryingGateway(next, testlog.New().Logger(), ctr, RetryConfig{MaxAttempts: 5})

			_, err := g.Route(context.Background(), from, to)
			if !errors.Is(err, failure) {
				t.Fatalf("expected %v, got %v", failure, err)
			}
			if atomic.LoadInt32(&calls) != 1 {
				t.Fatalf("expected 1 call, got %d", calls)
			}
			if ctr.Count() != 0 {
				t.Fatalf("expected 0 retries, got %d", ctr.Count())
			}
		})
	}
}

func TestRetryingGateway_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls int32
	next := &fakeProvider{
		routeFn: func(context.Context, geo.Point, geo.Point) (Route, error) {
			atomic.AddInt32(&calls, 1)
			return Route{}, &StatusError{Code: 500}
		},
	}
	ctr := &counterStub{}
	g := NewRetryingGateway(next, testlog.New().Logger(), ctr, RetryConfig{MaxAttempts: 3})

	_, err := g.Route(context.Background(), from, to)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("expected status 500, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if ctr.Count() != 2 {
		t.Fatalf("expected 2 retries, got %d", ctr.Count())
	}
}

func TestRetryingGateway_StopsWhenSleepInterrupted(t *testing.T) {
	t.Parallel()

	var calls int32
	next := &fakeProvider{
		routeFn: func(context.Context, geo.Point, geo.Point) (Route, error) {
			atomic.AddInt32(&calls, 1)
			return Route{}, &StatusError{Code: 502}
		},
	}
	g := NewRetryingGateway(next, testlog.New().Logger(), nil, RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second})
	g.sleep = func(context.Context, time.Duration) bool { return false }

	if _, err := g.Route(context.Background(), from, to); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBackoff_Capped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 500 * time.Millisecond},
		{70, 500 * time.Millisecond},
	}
	for _, c := range cases {
		if got := backoff(100*time.Millisecond, 500*time.Millisecond, c.attempt); got != c.want {
			t.Fatalf("attempt %d: want %s, got %s", c.attempt, c.want, got)
		}
	}
}

func TestNewRetryingGateway_NilNext(t *testing.T) {
	t.Parallel()
	if g := NewRetryingGateway(nil, nil, nil, RetryConfig{}); g != nil {
		t.Fatal("expected nil gateway")
	}
}
