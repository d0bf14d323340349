package session

import (
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/google/uuid"
)

// Session is one user's onboarding run together with its bookkeeping.
type Session struct {
	ID          string                  `json:"id"`
	FlowID      string                  `json:"flow_id"`
	FlowVersion int                     `json:"flow_version"`
	Status      Status                  `json:"status"`
	State       onboarding.SessionState `json:"state"`

	// Narrative is the coach's personalised welcome, filled after completion.
	Narrative string `json:"narrative,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Status represents the session lifecycle
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// NewSession creates an active session positioned at the start of flow.
func NewSession(flow *onboarding.Flow, state onboarding.SessionState, now time.Time) *Session {
	s := &Session{
		ID:          uuid.New().String(),
		FlowID:      flow.ID(),
		FlowVersion: flow.Version(),
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.apply(state, now)
	return s
}

// IsActive reports whether the session still accepts input.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// Recommendation returns the composed recommendation of a completed session.
func (s *Session) Recommendation() (onboarding.Recommendation, bool) {
	if s.Status != StatusCompleted || s.State.Recommendation == nil {
		return onboarding.Recommendation{}, false
	}
	return *s.State.Recommendation, true
}

// apply stores a new engine state and updates the lifecycle.
func (s *Session) apply(state onboarding.SessionState, now time.Time) {
	s.State = state
	s.UpdatedAt = now
	if state.Complete && s.Status == StatusActive {
		s.Status = StatusCompleted
		t := now
		s.CompletedAt = &t
	}
}

func (s *Session) abandon(now time.Time) {
	s.Status = StatusAbandoned
	s.UpdatedAt = now
}
