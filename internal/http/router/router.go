// Package router assembles the public HTTP surface.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"delivery-dispatch/internal/http/handlers"
)

// Middleware is chi-style middleware.
type Middleware func(http.Handler) http.Handler

// Deps are the handlers and middleware mounted by New. Nil middleware is skipped.
type Deps struct {
	Base     *handlers.Handlers
	Dispatch *handlers.DispatchHandler
	Routing  *handlers.RoutingHandler
	Tracking http.Handler

	Observability Middleware
	RateLimit     Middleware
	Timeout       time.Duration
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(d Deps) http.Handler {
	if d.Timeout <= 0 {
		d.Timeout = 5 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	use(r, d.Observability)

	// Long-lived tracking sockets must not inherit the request timeout.
	if d.Tracking != nil {
		r.Method(http.MethodGet, "/ws/tracking", d.Tracking)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(d.Timeout))

		r.Get("/ping", d.Base.Ping)
		r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))

		r.Route("/api/v1", func(r chi.Router) {
			if d.Dispatch != nil {
				r.Post("/orders/{orderID}/assign", d.Dispatch.AssignOrder)
				r.Get("/drivers/nearest", d.Dispatch.NearestDriver)
				r.Post("/drivers/{driverID}/location", d.Dispatch.UpdateLocation)
			}
			if d.Routing != nil {
				r.Route("/routes", func(r chi.Router) {
					use(r, d.RateLimit)
					r.Get("/", d.Routing.Route)
					r.Get("/eta", d.Routing.ETA)
					r.Get("/distance", d.Routing.Distance)
				})
			}
		})
	})

	r.NotFound(http.HandlerFunc(d.Base.NotFound))
	return r
}

func use(r chi.Router, mw Middleware) {
	if mw != nil {
		r.Use(mw)
	}
}
