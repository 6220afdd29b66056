// Package server exposes provider lookups and stored records over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/ryanm101/vnmeta/internal/store"
	"github.com/ryanm101/vnmeta/internal/vndb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Records is the read side of the store used by the records endpoints.
type Records interface {
	GetMetadata(ctx context.Context, slug, id string) (*metadata.Metadata, error)
	ListMetadata(ctx context.Context, limit int) ([]store.Summary, error)
	RefreshMetrics(ctx context.Context) error
}

// Server handles HTTP requests.
type Server struct {
	provider metadata.Provider
	records  Records
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a server. records may be nil, in which case the records
// endpoints answer 404.
func New(provider metadata.Provider, records Records, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		provider: provider,
		records:  records,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the server wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "vnmeta")
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/vn/{id}", s.handleDetails)
	s.mux.HandleFunc("GET /api/records", s.handleRecords)
	s.mux.HandleFunc("GET /api/records/{slug}/{id}", s.handleRecord)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metricsHandler())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	results, err := s.provider.Search(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": s.provider.Slug(),
		"results":  results,
	})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	md, err := s.provider.GetDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusNotFound, "no store configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := s.records.ListMetadata(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": list})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusNotFound, "no store configured")
		return
	}

	md, err := s.records.GetMetadata(r.Context(), r.PathValue("slug"), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// metricsHandler refreshes the store gauges before each scrape.
func (s *Server) metricsHandler() http.Handler {
	prom := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.records != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			if err := s.records.RefreshMetrics(ctx); err != nil {
				s.logger.Warn("failed to refresh store metrics", "error", err)
			}
			cancel()
		}
		prom.ServeHTTP(w, r)
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// statusFor maps provider and store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vndb.ErrInvalidID), errors.Is(err, store.ErrInvalidArg):
		return http.StatusBadRequest
	case errors.Is(err, vndb.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vndb.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, vndb.ErrUpstream), errors.Is(err, vndb.ErrNetwork), errors.Is(err, vndb.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
