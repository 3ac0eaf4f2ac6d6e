// Package api is the HTTP surface of the delivery daemon: device
// registration for the mobile apps, notification submission for backend
// services, and the operator endpoints for health, stats, and breaker
// control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/delivery"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/httpserver"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/monitor"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/ratelimit"
	"github.com/shiftflow/pushkit/pkg/resilience"
	"github.com/shiftflow/pushkit/pkg/validator"
)

// Handler bundles the services the API fronts.
type Handler struct {
	registry *devices.Registry
	engine   *delivery.Engine
	monitor  *monitor.Monitor
	reader   *auditlog.Reader
	store    notifications.Storage
	log      *slog.Logger
	limiter  *ratelimit.Limiter
	ready    []func(context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the API logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithRateLimit throttles the write endpoints per client IP.
func WithRateLimit(limiter *ratelimit.Limiter) Option {
	return func(h *Handler) { h.limiter = limiter }
}

// WithReadiness registers dependency probes for the readiness endpoint.
func WithReadiness(funcs ...func(context.Context) error) Option {
	return func(h *Handler) { h.ready = append(h.ready, funcs...) }
}

// New creates the API handler.
func New(registry *devices.Registry, engine *delivery.Engine, mon *monitor.Monitor, reader *auditlog.Reader, store notifications.Storage, opts ...Option) *Handler {
	h := &Handler{
		registry: registry,
		engine:   engine,
		monitor:  mon,
		reader:   reader,
		store:    store,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/livez", httpserver.HealthCheckHandler(h.log))
	r.Get("/readyz", httpserver.HealthCheckHandler(h.log, h.ready...))
	r.Get("/health", h.getHealth)
	r.Get("/stats", h.getStats)

	r.Route("/devices", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(ratelimit.Middleware(h.limiter, ratelimit.ByClientIP))
		}
		r.Post("/", h.registerDevice)
		r.Delete("/{token}", h.deactivateDevice)
	})

	r.Route("/notifications", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(ratelimit.Middleware(h.limiter, ratelimit.ByClientIP))
		}
		r.Post("/", h.createNotification)
		r.Get("/{id}", h.getNotification)
		r.Post("/{id}/delivered", h.confirmDelivered)
	})

	r.Get("/workers/{id}/history", h.workerHistory)
	r.Post("/admin/breakers/{dependency}/reset", h.resetBreaker)

	return r
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			h.log.Error("failed to encode response", logger.Error(err))
		}
	}
}

type errorResponse struct {
	Error  string                     `json:"error"`
	Fields validator.ValidationErrors `json:"fields,omitempty"`
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case validator.IsValidationError(err):
		h.respond(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation failed",
			Fields: validator.ExtractValidationErrors(err),
		})
	case errors.Is(err, delivery.ErrNoRecipients):
		h.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, notifications.ErrNotificationNotFound),
		errors.Is(err, devices.ErrTokenNotFound):
		h.respond(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, notifications.ErrInvalidTransition),
		errors.Is(err, delivery.ErrNotDeliverable):
		h.respond(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case resilience.IsCircuitOpen(err):
		h.respond(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed", logger.Error(err))
		h.respond(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
