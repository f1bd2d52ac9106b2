// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/collabmatch/internal/engine"
	"github.com/pdiddy/collabmatch/pkg/types"
)

const defaultTopK = 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.svc.QueueDepth(),
	})
}

// handleListOpportunities serves GET /opportunities?status=&min_score=&pair=a:b&limit=.
func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	f, err := parseOpportunityFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opps, err := s.svc.ListOpportunities(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if opps == nil {
		opps = []types.Opportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}

func parseOpportunityFilter(r *http.Request) (types.OpportunityFilter, error) {
	var f types.OpportunityFilter
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		st, err := types.ParseOpportunityStatus(v)
		if err != nil {
			return f, badRequest("%v", err)
		}
		f.Status = st
	}
	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 || score > 100 {
			return f, badRequest("min_score must be a number in [0,100], got %q", v)
		}
		f.MinScore = score
	}
	if v := q.Get("pair"); v != "" {
		p, err := types.ParsePair(v)
		if err != nil {
			return f, badRequest("%v", err)
		}
		f.Pair = &p
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, badRequest("limit must be a non-negative integer, got %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.finalize(w, r, s.svc.Dismiss, types.StatusDismissed)
}

func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	s.finalize(w, r, s.svc.Act, types.StatusActioned)
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, string) error, status types.OpportunityStatus) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Rank(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type similarRequest struct {
	Text       string `json:"text"`
	TopK       int    `json:"top_k" validate:"gte=0,lte=1000"`
	Department string `json:"department"`
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}
	res, err := s.svc.FindSimilar(r.Context(), req.Text, req.TopK, engine.SimilarFilter{Department: req.Department})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res == nil {
		res = []types.SimilarResearcher{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSimilarPublications(w http.ResponseWriter, r *http.Request) {
	topK := defaultTopK
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, badRequest("top_k must be a positive integer, got %q", v))
			return
		}
		topK = n
	}
	res, err := s.svc.FindSimilarPublications(r.Context(), chi.URLParam(r, "id"), topK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res == nil {
		res = []types.SimilarPublication{}
	}
	writeJSON(w, http.StatusOK, res)
}

type alignmentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAlignment(w http.ResponseWriter, r *http.Request) {
	var req alignmentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	score, err := s.svc.AlignmentScore(r.Context(), id, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"researcher_id": id, "score": score})
}

type changedRequest struct {
	Fields []string `json:"fields"`
}

func (s *Server) handleEntityChanged(w http.ResponseWriter, r *http.Request) {
	var req changedRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, id := types.EntityType(chi.URLParam(r, "type")), chi.URLParam(r, "id")
	scheduled, err := s.svc.EntityChanged(r.Context(), t, id, req.Fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": scheduled})
}

func (s *Server) handleEntityDeleted(w http.ResponseWriter, r *http.Request) {
	t, id := types.EntityType(chi.URLParam(r, "type")), chi.URLParam(r, "id")
	if err := s.svc.EntityDeleted(r.Context(), t, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	t, id := types.EntityType(chi.URLParam(r, "type")), chi.URLParam(r, "id")
	if err := s.svc.TriggerRebuild(r.Context(), t, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

// handleJobs serves GET /jobs, filtered by repeated state parameters.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	var states []types.JobState
	for _, v := range r.URL.Query()["state"] {
		st, err := types.ParseJobState(v)
		if err != nil {
			s.writeError(w, r, badRequest("%v", err))
			return
		}
		states = append(states, st)
	}
	jobs, err := s.svc.JobStatus(r.Context(), states...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.EmbeddingJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
