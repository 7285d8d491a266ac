// Package server exposes the report cache over HTTP: consumers trigger a fetch
// and read back the current view of the entry in one request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	reportsync "github.com/AnandSundar/go-reportsync"
	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/query"
	"github.com/AnandSundar/go-reportsync/report"
)

// Dispatcher is the write side used by the handlers
type Dispatcher interface {
	Fetch(ctx context.Context, category report.Category, q query.Query) error
	Reset(ctx context.Context) error
}

// Server routes report requests to a dispatcher and its store
type Server struct {
	dispatcher Dispatcher
	reader     reportsync.Reader
	registry   *report.Registry
	logger     *log.Logger
	metrics    http.Handler
}

// Option configures a Server
type Option func(*Server)

// WithMetricsHandler serves h on GET /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l.WithComponent(log.ComponentHTTP)
	}
}

// New creates a server. A nil registry uses report.NewRegistry().
func New(d Dispatcher, r reportsync.Reader, registry *report.Registry, opts ...Option) *Server {
	if registry == nil {
		registry = report.NewRegistry()
	}
	s := &Server{
		dispatcher: d,
		reader:     r,
		registry:   registry,
		logger:     log.FromSlog(nil, log.ComponentHTTP),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reports/{provider}/{type}", s.handleReport)
	mux.HandleFunc("DELETE /api/reports", s.handleReset)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return log.Middleware(s.logger)(mux)
}

type errorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

type viewResponse struct {
	Key    string            `json:"key"`
	Status reportsync.Status `json:"status"`
	Data   *report.Report    `json:"data,omitempty"`
	Error  *errorResponse    `json:"error,omitempty"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category, err := report.ParseCategory(r.PathValue("provider"), r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q, err := query.Parse(r.URL.RawQuery)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.dispatcher.Fetch(ctx, category, q); err != nil {
		switch {
		case errors.Is(err, report.ErrUnknownCategory):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, query.ErrCircularQuery), errors.Is(err, query.ErrUnsupportedValue):
			writeError(w, http.StatusBadRequest, err)
		default:
			log.FromContext(ctx).ErrorContext(ctx, "Failed to dispatch fetch",
				log.NewFields().WithOperation(log.OpFetch).WithError(err).ToSlice()...)
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	key, err := reportsync.NewKey(category, q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := reportsync.Select(ctx, s.reader, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := viewResponse{Key: key.String(), Status: view.Status, Data: view.Report}
	if view.Err != nil {
		resp.Error = &errorResponse{Message: view.Err.Error()}
		var status interface{ HTTPStatus() int }
		if errors.As(view.Err, &status) {
			resp.Error.StatusCode = status.HTTPStatus()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		report.Category
		Path string `json:"path"`
	}
	cats := s.registry.Categories()
	out := make([]entry, 0, len(cats))
	for _, c := range cats {
		e, err := s.registry.Lookup(c)
		if err != nil {
			continue
		}
		out = append(out, entry{Category: c, Path: e.Path})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Message: err.Error()})
}
