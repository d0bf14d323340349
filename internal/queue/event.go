package queue

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
	"github.com/google/uuid"
)

// ErrIncompleteSession is returned when publishing a session without a recommendation.
var ErrIncompleteSession = errors.New("session has no recommendation")

// CompletionEvent is published once per finished onboarding.
type CompletionEvent struct {
	ID          uuid.UUID                 `json:"id"`
	SessionID   string                    `json:"session_id"`
	FlowID      string                    `json:"flow_id"`
	FlowVersion int                       `json:"flow_version"`
	Persona     onboarding.Persona        `json:"persona"`
	Trainer     onboarding.Trainer        `json:"trainer"`
	Program     string                    `json:"program"`
	Scores      []onboarding.TrainerScore `json:"scores"`
	Session     *session.Session          `json:"session"`
	CreatedAt   time.Time                 `json:"created_at"`
	CompletedAt time.Time                 `json:"completed_at"`
	PublishedAt time.Time                 `json:"published_at"`
}

// NewCompletionEvent builds the event for a completed session. The full
// session snapshot travels with the event so consumers can archive it.
func NewCompletionEvent(sess *session.Session) (*CompletionEvent, error) {
	rec, ok := sess.Recommendation()
	if !ok {
		return nil, ErrIncompleteSession
	}

	ev := &CompletionEvent{
		ID:          uuid.New(),
		SessionID:   sess.ID,
		FlowID:      sess.FlowID,
		FlowVersion: sess.FlowVersion,
		Persona:     rec.Persona,
		Trainer:     rec.Trainer,
		Program:     rec.Program.Title,
		Scores:      rec.Scores,
		Session:     sess,
		CreatedAt:   sess.CreatedAt,
		PublishedAt: time.Now().UTC(),
	}
	if sess.CompletedAt != nil {
		ev.CompletedAt = *sess.CompletedAt
	}
	return ev, nil
}
