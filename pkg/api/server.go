// Package api serves stored run series and the latest comparison tables
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vjranagit/fuzzratio/pkg/report"
	"github.com/vjranagit/fuzzratio/pkg/sink"
	"github.com/vjranagit/fuzzratio/pkg/storage"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// TenantHeader selects the storage tenant of a request
const TenantHeader = "X-Tenant-ID"

// Server implements the HTTP API server
type Server struct {
	storage storage.Storage
	addr    string
	server  *http.Server
	logger  *slog.Logger
	router  chi.Router

	mu        sync.RWMutex
	summaries report.Tables
	runs      map[string]types.RunSummary
}

// NewServer creates a new API server
func NewServer(addr string, store storage.Storage, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		storage: store,
		addr:    addr,
		logger:  logger,
		runs:    make(map[string]types.RunSummary),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/write", s.handleWrite)
		r.Get("/query", s.handleQuery)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{run}", s.handleRun)
		r.Get("/summaries", s.handleSummaries)
	})
	return r
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler { return s.router }

// SetSummaries publishes the summaries of the latest analysis
func (s *Server) SetSummaries(summaries []types.RunSummary) {
	runs := make(map[string]types.RunSummary, len(summaries))
	for _, sum := range summaries {
		runs[sum.Name] = sum
	}
	tables := report.Tabulate(summaries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = tables
	s.runs = runs
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func tenantOf(r *http.Request) string {
	if tenantID := r.Header.Get(TenantHeader); tenantID != "" {
		return tenantID
	}
	return sink.TenantRuns
}

// handleWrite stores series pushed by an external producer
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req types.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	req.TenantID = tenantOf(r)

	if err := s.storage.Write(r.Context(), &req); err != nil {
		s.logger.Error("write failed", "tenant", req.TenantID, "error", err)
		http.Error(w, fmt.Sprintf("Write failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleQuery serves a selector query. start and end are elapsed run
// seconds; a missing end means no upper bound.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "Missing query parameter", http.StatusBadRequest)
		return
	}

	start, err := parseSeconds(r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "Invalid start time", http.StatusBadRequest)
		return
	}
	end, err := parseSeconds(r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "Invalid end time", http.StatusBadRequest)
		return
	}

	req := &types.QueryRequest{
		TenantID:  tenantOf(r),
		Query:     query,
		StartTime: start,
		EndTime:   end,
	}

	result, err := s.storage.Query(r.Context(), req)
	switch {
	case errors.Is(err, storage.ErrSeriesNotFound):
		writeJSON(w, http.StatusNotFound, result)
		return
	case err != nil:
		http.Error(w, fmt.Sprintf("Query failed: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseSeconds(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

// handleRuns lists the runs known to the store
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.storage.LabelValues(r.Context(), storage.LabelRun)
	if err != nil {
		http.Error(w, fmt.Sprintf("Listing runs failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"runs": runs})
}

// handleRun returns the summary of one run from the latest analysis
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "run")

	s.mu.RLock()
	summary, ok := s.runs[name]
	s.mu.RUnlock()

	if !ok {
		http.Error(w, fmt.Sprintf("Run %q not found", name), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	tables := s.summaries
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
