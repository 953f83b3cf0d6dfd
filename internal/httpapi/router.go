// Package httpapi exposes resource services over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-repository-query/internal/logging"
	"github.com/goliatone/go-repository-query/internal/metrics"
	"github.com/goliatone/go-repository-query/query"
	"github.com/goliatone/go-repository-query/resource"
	"github.com/goliatone/go-repository-query/schema"
	"github.com/goliatone/go-repository-query/storage"
)

const maxBodyBytes = 1 << 20

// HealthFunc reports whether the service can serve requests.
type HealthFunc func(ctx context.Context) error

// Option customises the router.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithHealthCheck makes /healthz report check failures as 503.
func WithHealthCheck(check HealthFunc) Option {
	return func(h *Handler) {
		h.health = check
	}
}

// Handler serves every registered resource under its route.
type Handler struct {
	services []*resource.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	health   HealthFunc
}

// NewRouter mounts the services:
//
//	GET    /{route}           list
//	POST   /{route}/query     list with a JSON query body
//	GET    /{route}/{id}      point lookup
//	POST   /{route}           create
//	PATCH  /{route}/{id}      update
//	DELETE /{route}/{id}      delete
func NewRouter(services []*resource.Service, opts ...Option) http.Handler {
	h := &Handler{services: services, logger: logging.Discard()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.Get("/healthz", h.handleHealth)

	for _, svc := range services {
		r.Route("/"+svc.Schema().Route, func(r chi.Router) {
			r.Get("/", h.handleList(svc))
			r.Post("/", h.handleCreate(svc))
			r.Post("/query", h.handleQuery(svc))
			r.Get("/{id}", h.handleGet(svc))
			r.Patch("/{id}", h.handleUpdate(svc))
			r.Delete("/{id}", h.handleDelete(svc))
		})
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleList(svc *resource.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.List(r.Context(), query.ParseValues(r.URL.Query()))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (h *Handler) handleQuery(svc *resource.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw query.RawQueryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid query body"})
			return
		}
		records, err := svc.List(r.Context(), raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (h *Handler) handleGet(svc *resource.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"), query.ParseValues(r.URL.Query()))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) handleCreate(svc *resource.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := readPayload(w, r)
		if !ok {
			return
		}
		rec, err := svc.Create(r.Context(), payload)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func (h *Handler) handleUpdate(svc *resource.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := readPayload(w, r)
		if !ok {
			return
		}
		rec, err := svc.Update(r.Context(), chi.URLParam(r, "id"), payload)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) handleDelete(svc *resource.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func readPayload(w http.ResponseWriter, r *http.Request) (schema.Record, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return nil, false
	}
	obj, err := query.DecodeObject(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "payload must be a JSON object"})
		return nil, false
	}
	return obj, true
}

// writeError maps service errors to responses. Validation problems are
// returned to the client; storage details never are.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "validation failed",
			"problems": verr.Problems,
		})
		return
	}
	if errors.Is(err, resource.ErrReadOnly) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "resource is read-only"})
		return
	}

	switch storage.KindOf(err) {
	case storage.KindNotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case storage.KindConstraint:
		writeJSON(w, http.StatusConflict, map[string]any{"error": "conflict"})
	case storage.KindConnection:
		h.logger.Error("storage unavailable", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "storage unavailable"})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
