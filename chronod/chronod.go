// Package chronod is the HTTP API server for the timer engine.
package chronod

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/pubsub"
	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronod/timer"
	"github.com/chronohq/chrono/chronosdk"
)

// Options are the required parameters for the API.
type Options struct {
	Logger   slog.Logger
	Database database.Store
	Pubsub   pubsub.Pubsub
	// SessionLookup verifies presented tokens. Session issuance lives in
	// the surrounding platform.
	SessionLookup httpmw.SessionLookup
	// Clock defaults to the real clock.
	Clock quartz.Clock
	// PrometheusRegistry receives the watch-socket metrics. Optional.
	PrometheusRegistry *prometheus.Registry
}

// API bundles the timer service with its HTTP surface.
type API struct {
	*Options

	Timer       *timer.Service
	RootHandler chi.Router

	watchConnections prometheus.Gauge
	watchEventsSent  *prometheus.CounterVec
}

// New constructs the API into an HTTP handler.
func New(options *Options) *API {
	if options.Clock == nil {
		options.Clock = quartz.NewReal()
	}
	if options.PrometheusRegistry == nil {
		options.PrometheusRegistry = prometheus.NewRegistry()
	}

	api := &API{
		Options: options,
		Timer: timer.New(timer.Options{
			Database: options.Database,
			Pubsub:   options.Pubsub,
			Logger:   options.Logger.Named("timer"),
			Clock:    options.Clock,
		}),
		watchConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronod", Subsystem: "watch", Name: "connections",
			Help: "Open websocket room connections.",
		}),
		watchEventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronod", Subsystem: "watch", Name: "events_total",
			Help: "Room events forwarded to websockets, by outcome.",
		}, []string{"outcome"}),
	}
	options.PrometheusRegistry.MustRegister(api.watchConnections, api.watchEventsSent)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), rw, http.StatusOK, chronosdk.Response{Message: "ok"})
		})
		r.Group(func(r chi.Router) {
			r.Use(httpmw.ExtractSession(options.SessionLookup))
			r.Route("/users/{user}", func(r chi.Router) {
				r.Use(httpmw.ExtractUserParam())
				r.Route("/timer", func(r chi.Router) {
					r.Get("/", api.activeTimer)
					r.Post("/", api.startTimer)
					r.Patch("/", api.updateTimer)
					r.Post("/stop", api.stopTimer)
					r.Post("/discard", api.discardTimer)
				})
				r.Route("/entries", func(r chi.Router) {
					r.Get("/", api.timeEntries)
					r.Post("/", api.postTimeEntry)
					r.Route("/{entry}", func(r chi.Router) {
						r.Patch("/", api.patchTimeEntry)
						r.Delete("/", api.deleteTimeEntry)
						r.Post("/sessions", api.postSession)
					})
				})
				r.Route("/sessions/{session}", func(r chi.Router) {
					r.Patch("/", api.patchSession)
					r.Delete("/", api.deleteSession)
				})
				r.Route("/shortcuts", func(r chi.Router) {
					r.Get("/", api.shortcuts)
					r.Post("/", api.postShortcut)
					r.Delete("/{shortcut}", api.deleteShortcut)
				})
				r.Route("/reports", func(r chi.Router) {
					r.Get("/daily", api.dailyReport)
					r.Get("/weekly", api.weeklyReport)
					r.Get("/monthly", api.monthlyReport)
				})
				r.Get("/watch", api.watchTimerEvents)
			})
			r.Get("/payroll/export", api.payrollExport)
		})
	})
	api.RootHandler = r
	return api
}

func (api *API) Handler() http.Handler {
	return api.RootHandler
}

// writeTimerError maps the service error taxonomy onto HTTP statuses.
// Unknown errors become 500s.
func writeTimerError(rw http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case timer.IsNotFound(err):
		httpapi.Write(ctx, rw, http.StatusNotFound, chronosdk.Response{
			Message: err.Error(),
		})
	case timer.IsConflict(err):
		httpapi.Write(ctx, rw, http.StatusConflict, chronosdk.Response{
			Message: err.Error(),
		})
	case timer.IsInvalidOperation(err):
		httpapi.Write(ctx, rw, http.StatusUnprocessableEntity, chronosdk.Response{
			Message: err.Error(),
		})
	default:
		httpapi.InternalServerError(ctx, rw, err)
	}
}
