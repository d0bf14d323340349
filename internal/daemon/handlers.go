package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/coach"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

// errorStatuses maps service and engine errors to HTTP statuses. The first
// match wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{session.ErrSessionNotFound, http.StatusNotFound},
	{session.ErrSessionNotActive, http.StatusConflict},
	{session.ErrNotComplete, http.StatusConflict},
	{onboarding.ErrAnalysisPending, http.StatusConflict},
	{onboarding.ErrFlowComplete, http.StatusConflict},
	{onboarding.ErrWrongStepType, http.StatusConflict},
	{onboarding.ErrInvalidSkip, http.StatusConflict},
	{onboarding.ErrInvalidOption, http.StatusUnprocessableEntity},
	{onboarding.ErrNoTextMatch, http.StatusUnprocessableEntity},
	{onboarding.ErrEmptySelection, http.StatusUnprocessableEntity},
}

func (s *Server) serviceError(w http.ResponseWriter, message string, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			s.jsonError(w, e.status, e.err.Error(), nil)
			return
		}
	}
	s.jsonError(w, http.StatusInternalServerError, message, err)
}

// Health & status

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	flow := s.engine.Flow()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"flow":           map[string]any{"id": flow.ID(), "version": flow.Version(), "steps": flow.Len()},
		"storage":        s.cfg.Storage.Backend,
		"llm_providers":  s.llmRegistry.List(),
		"archive":        s.archive != nil,
		"events":         s.cfg.Events.Enabled,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "analytics not available", nil)
		return
	}

	stats, err := s.stats.Stats()
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to compute stats", err)
		return
	}

	resp := map[string]any{"funnel": stats}
	if s.counter != nil {
		if counts, err := s.counter.CountByStatus(); err == nil {
			resp["sessions"] = counts
		} else {
			logRequestError(r.Context(), "failed to count sessions", err)
		}
	}
	if s.archive != nil {
		resp["archive"] = s.archiveCounts(r.Context())
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// archiveCounts reports archived recommendations. Query failures are logged
// and left out so the funnel still renders.
func (s *Server) archiveCounts(ctx context.Context) map[string]any {
	out := make(map[string]any, 2)
	if personas, err := s.archive.PersonaCounts(ctx); err == nil {
		out["personas"] = personas
	} else {
		logRequestError(ctx, "failed to count archived personas", err)
	}
	if trainers, err := s.archive.TrainerCounts(ctx); err == nil {
		out["trainers"] = trainers
	} else {
		logRequestError(ctx, "failed to count archived trainers", err)
	}
	return out
}

// Catalogue

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	flow := s.engine.Flow()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"id":      flow.ID(),
		"version": flow.Version(),
		"steps":   flow.Steps(),
	})
}

func (s *Server) handleTrainers(w http.ResponseWriter, r *http.Request) {
	trainers := make([]map[string]any, 0, len(onboarding.TrainerPriority))
	for _, t := range onboarding.TrainerPriority {
		trainers = append(trainers, map[string]any{
			"id":             t,
			"name":           t.Name(),
			"title":          t.Title(),
			"call_to_action": coach.CallToAction(t),
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"trainers": trainers})
}

// Session handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.serviceError(w, "failed to create session", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, session.NewView(s.engine, sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.serviceError(w, "failed to list sessions", err)
		return
	}

	status := session.Status(r.URL.Query().Get("status"))
	views := make([]session.View, 0, len(sessions))
	for _, sess := range sessions {
		if status != "" && sess.Status != status {
			continue
		}
		views = append(views, session.NewView(s.engine, sess))
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to get session", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, session.NewView(s.engine, sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.serviceError(w, "failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Abandon(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to abandon session", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, session.NewView(s.engine, sess))
}

// Transition handlers

type valueRequest struct {
	Value string `json:"value"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Value == "" {
		s.jsonError(w, http.StatusBadRequest, "value is required", nil)
		return
	}
	s.respondTransition(w, r, func(ctx context.Context, id string) (*session.Session, error) {
		return s.sessions.Answer(ctx, id, req.Value)
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Value == "" {
		s.jsonError(w, http.StatusBadRequest, "value is required", nil)
		return
	}
	s.respondTransition(w, r, func(ctx context.Context, id string) (*session.Session, error) {
		return s.sessions.Select(ctx, id, req.Value)
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.respondTransition(w, r, s.sessions.Confirm)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.respondTransition(w, r, s.sessions.Skip)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		s.jsonError(w, http.StatusBadRequest, "text is required", nil)
		return
	}
	s.respondTransition(w, r, func(ctx context.Context, id string) (*session.Session, error) {
		return s.sessions.AnswerText(ctx, id, req.Text)
	})
}

func (s *Server) respondTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*session.Session, error)) {
	sess, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "transition failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, session.NewView(s.engine, sess))
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.sessions.Recommendation(r.Context(), id)
	if err != nil {
		s.serviceError(w, "failed to get recommendation", err)
		return
	}

	resp := map[string]any{
		"recommendation": rec,
		"call_to_action": coach.CallToAction(rec.Trainer),
	}
	if sess, err := s.sessions.Get(r.Context(), id); err == nil && sess.Narrative != "" {
		resp["narrative"] = sess.Narrative
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}
