// Package http serves the wingman reply API over HTTP. The adapter owns
// routing, body limits, and status mapping; request-scoped concerns run
// through the transport middleware chain.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/auth"
	"github.com/wingman-dev/wingman/pkg/observability"
	"github.com/wingman-dev/wingman/pkg/storage"
	"github.com/wingman-dev/wingman/pkg/transport"
)

// HealthChecker is the readiness contract for backing services (the
// stage cache, the failed-output store).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Adapter serves the reply API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	creator  transport.ReplyCreator
	failures storage.FailureStore // nil if not configured
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	checks   map[string]HealthChecker
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
	MetricsPath     string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
		MetricsPath:     "/metrics",
	}
}

// NewAdapter creates an HTTP adapter with the given ReplyCreator and options.
// The FailureStore is optional; when nil, the failure inspection endpoints
// return an error indicating the operation is not available.
// Middleware is applied to the ReplyCreator in the given order.
func NewAdapter(creator transport.ReplyCreator, failures storage.FailureStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}

	a := &Adapter{
		creator:  creator,
		failures: failures,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
		checks:   make(map[string]HealthChecker),
	}

	a.mux.HandleFunc("POST /v1/replies", a.handleCreateReply)
	a.mux.HandleFunc("DELETE /v1/replies/{id}", a.handleCancelReply)
	a.mux.HandleFunc("GET /v1/failures", a.handleListFailures)
	a.mux.HandleFunc("GET /v1/failures/{id}", a.handleGetFailure)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// RegisterReadiness adds a named backing service to the readiness probe.
func (a *Adapter) RegisterReadiness(name string, c HealthChecker) {
	a.checks[name] = c
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request metrics and X-Request-ID propagation.
func (a *Adapter) Handler() http.Handler {
	return observability.MetricsMiddleware(httpRequestIDMiddleware(a.mux))
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is forwarded into
// the context; after the transport-level RequestID middleware assigns an
// ID, the wrapper echoes it on the response before the first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleCreateReply handles POST /v1/replies.
func (a *Adapter) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	// Validate Content-Type.
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequest("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	// Limit body size.
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	// Decode request.
	var req api.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequest("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequest("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	// The authenticated tier wins over whatever the body claims.
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		req.Tier = id.Tier()
	}

	// Register for explicit cancellation. The ID is assigned here, before
	// the middleware chain runs, so DELETE can find the run.
	if req.RequestID == "" {
		req.RequestID = api.NewRequestID()
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	a.inflight.Register(req.RequestID, cancel)
	defer a.inflight.Remove(req.RequestID)

	result, err := a.creator.CreateReply(ctx, &req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleCancelReply handles DELETE /v1/replies/{id}. It aborts a reply
// generation that is still running; completed or unknown IDs return 404.
func (a *Adapter) handleCancelReply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateRequestID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequest("id", "malformed request ID"),
			http.StatusBadRequest,
		)
		return
	}

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	transport.WriteErrorResponse(w,
		api.NewInvalidRequest("id", "no running request with ID "+id),
		http.StatusNotFound,
	)
}

// handleListFailures handles GET /v1/failures.
func (a *Adapter) handleListFailures(w http.ResponseWriter, r *http.Request) {
	if a.failures == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequest("", "failure inspection is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequest("limit", "limit must be a positive integer"),
				http.StatusBadRequest,
			)
			return
		}
		limit = n
	}

	records, err := a.failures.ListFailures(r.Context(), limit)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": records})
}

// handleGetFailure handles GET /v1/failures/{id}.
func (a *Adapter) handleGetFailure(w http.ResponseWriter, r *http.Request) {
	if a.failures == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequest("", "failure inspection is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	rec, err := a.failures.GetFailure(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequest("id", "failure record not found"),
				http.StatusNotFound,
			)
			return
		}
		transport.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleHealthz is the liveness probe: the process is up.
func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is the readiness probe: every registered backing service
// must answer its health check.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(a.checks))
	healthy := true
	for name, c := range a.checks {
		if err := c.HealthCheck(r.Context()); err != nil {
			status[name] = err.Error()
			healthy = false
		} else {
			status[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{"healthy": healthy, "checks": status})
}
