// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package api exposes the engine over HTTP: opportunity listing and
// lifecycle, similarity search, entity change notifications, and the
// operational health and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/pdiddy/collabmatch/internal/engine"
	"github.com/pdiddy/collabmatch/internal/match"
	"github.com/pdiddy/collabmatch/internal/metrics"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// Service is the engine surface served over HTTP.
type Service interface {
	ListOpportunities(ctx context.Context, f types.OpportunityFilter) ([]types.Opportunity, error)
	Dismiss(ctx context.Context, id string) error
	Act(ctx context.Context, id string) error
	Rank(ctx context.Context) (match.RankSummary, error)
	FindSimilar(ctx context.Context, text string, topK int, f engine.SimilarFilter) ([]types.SimilarResearcher, error)
	FindSimilarPublications(ctx context.Context, researcherID string, topK int) ([]types.SimilarPublication, error)
	AlignmentScore(ctx context.Context, researcherID, text string) (float64, error)
	EntityChanged(ctx context.Context, t types.EntityType, id string, changed []string) (bool, error)
	EntityDeleted(ctx context.Context, t types.EntityType, id string) error
	TriggerRebuild(ctx context.Context, t types.EntityType, id string) error
	JobStatus(ctx context.Context, states ...types.JobState) ([]types.EmbeddingJob, error)
	QueueDepth() int
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc      Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// New returns a Server. A nil Metrics disables instrumentation and the
// /metrics endpoint.
func New(svc Service, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, metrics: m, logger: logger, validate: validator.New()}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument(s.metrics, s.logger))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/opportunities", s.handleListOpportunities)
		r.Post("/opportunities/{id}/dismiss", s.handleDismiss)
		r.Post("/opportunities/{id}/act", s.handleAct)
		r.Post("/rank", s.handleRank)

		r.Post("/similar", s.handleSimilar)
		r.Get("/researchers/{id}/publications", s.handleSimilarPublications)
		r.Post("/researchers/{id}/alignment", s.handleAlignment)

		r.Route("/entities/{type}/{id}", func(r chi.Router) {
			r.Post("/changed", s.handleEntityChanged)
			r.Delete("/", s.handleEntityDeleted)
			r.Post("/rebuild", s.handleRebuild)
		})

		r.Get("/jobs", s.handleJobs)
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks client errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidEntity), errors.Is(err, errBadRequest), errors.As(err, &verrs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v and validates it. An empty body leaves v
// at its zero value.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("decoding request body: %v", err)
	}
	return s.validate.Struct(v)
}
