package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
)

// Server exposes a ports.Engine over HTTP.
type Server struct {
	Engine  ports.Engine
	Streams *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
}

type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager already registered as an event sink.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine ports.Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		Engine:  engine,
		version: "dev",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	v, err := newValidator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(v.middleware)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Get("/saga-types", s.ListSagaTypes)
		r.Get("/sagas", s.ListSagas)
		r.Post("/sagas", s.StartSaga)
		r.Get("/sagas/{id}", s.GetSaga)
		r.Get("/sagas/{id}/history", s.GetSagaHistory)
		r.Get("/sagas/{id}/stream", s.StreamSaga)
		r.Get("/stream", s.StreamAll)
		r.Post("/events", s.PublishEvent)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>sagaflow API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "sagaflow",
		"version": strings.TrimSpace(s.version),
	})
}

// ListSagaTypes handles GET /saga-types.
func (s *Server) ListSagaTypes(w http.ResponseWriter, r *http.Request) {
	types := s.Engine.SagaTypes()
	if types == nil {
		types = []string{}
	}
	writeJSON(w, http.StatusOK, types)
}

// ListSagasParams are the query parameters of GET /sagas.
type ListSagasParams struct {
	Status *string
	Name   *string
	Limit  *int
}

// ListSagas handles GET /sagas.
func (s *Server) ListSagas(w http.ResponseWriter, r *http.Request) {
	var params ListSagasParams
	query := r.URL.Query()
	for name, dest := range map[string]any{"status": &params.Status, "name": &params.Name, "limit": &params.Limit} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	sagas, err := s.Engine.List(r.Context())
	if err != nil {
		s.fail(w, r, "List", err)
		return
	}

	out := make([]*domain.Saga, 0, len(sagas))
	for _, saga := range sagas {
		if params.Status != nil && string(saga.State.Status) != *params.Status {
			continue
		}
		if params.Name != nil && saga.Name != *params.Name {
			continue
		}
		out = append(out, saga)
		if params.Limit != nil && len(out) == *params.Limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// StartSaga handles POST /sagas.
func (s *Server) StartSaga(w http.ResponseWriter, r *http.Request) {
	var req ports.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		s.logger.Warn("StartSaga: invalid request body", "err", err)
		return
	}

	saga, err := s.Engine.StartSaga(r.Context(), req)
	if err != nil {
		s.fail(w, r, "StartSaga", err)
		return
	}
	w.Header().Set("Location", "/sagas/"+saga.ID)
	writeJSON(w, http.StatusCreated, saga)
}

// GetSaga handles GET /sagas/{id}.
func (s *Server) GetSaga(w http.ResponseWriter, r *http.Request) {
	saga, err := s.Engine.Saga(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "GetSaga", err)
		return
	}
	writeJSON(w, http.StatusOK, saga)
}

// GetSagaHistory handles GET /sagas/{id}/history.
func (s *Server) GetSagaHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.Engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "GetSagaHistory", err)
		return
	}
	if history == nil {
		history = []domain.SagaTransition{}
	}
	writeJSON(w, http.StatusOK, history)
}

// StreamSaga handles GET /sagas/{id}/stream (SSE).
func (s *Server) StreamSaga(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Engine.Saga(r.Context(), id); err != nil {
		s.fail(w, r, "StreamSaga", err)
		return
	}
	s.logger.Info("SSE: subscribing to saga", "saga_id", id)
	s.Streams.serve(w, r, id)
}

// StreamAll handles GET /stream (SSE).
func (s *Server) StreamAll(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("SSE: subscribing to all sagas")
	s.Streams.serve(w, r, allSagas)
}

// PublishEvent handles POST /events.
func (s *Server) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.DomainEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		s.logger.Warn("PublishEvent: invalid request body", "err", err)
		return
	}
	if err := s.Engine.HandleEvent(r.Context(), ev); err != nil {
		s.fail(w, r, "PublishEvent", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// fail maps engine errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), op+" failed", "err", err)
	} else {
		s.logger.WarnContext(r.Context(), op+" rejected", "err", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSagaNotFound), errors.Is(err, domain.ErrDefinitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSaga), errors.Is(err, domain.ErrStepNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSagaExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
