package session

import (
	"context"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

// SessionService defines the session operations used by the daemon handlers
// and the MCP server.
type SessionService interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	Abandon(ctx context.Context, id string) (*Session, error)

	Answer(ctx context.Context, id, value string) (*Session, error)
	Select(ctx context.Context, id, value string) (*Session, error)
	Confirm(ctx context.Context, id string) (*Session, error)
	Skip(ctx context.Context, id string) (*Session, error)
	AnswerText(ctx context.Context, id, text string) (*Session, error)

	Recommendation(ctx context.Context, id string) (*onboarding.Recommendation, error)
}

// Ensure Service implements SessionService
var _ SessionService = (*Service)(nil)

// SessionStore defines the persistence interface for sessions.
// The JSON file, SQLite and Redis stores implement this.
type SessionStore interface {
	Save(session *Session) error
	Get(id string) (*Session, error)
	Delete(id string) error
	List() ([]string, error)
}

// Ensure Store (JSON) implements SessionStore
var _ SessionStore = (*Store)(nil)

// Narrator writes a personalised welcome for a finished onboarding.
type Narrator interface {
	Narrate(ctx context.Context, profile onboarding.Profile, rec onboarding.Recommendation) (string, error)
}

// Archive keeps completed sessions for reporting.
type Archive interface {
	Save(ctx context.Context, session *Session) error
}

// Publisher announces completed sessions to other services.
type Publisher interface {
	PublishCompletion(ctx context.Context, session *Session) error
}

// Recorder keeps a log of onboarding events for funnel statistics.
type Recorder interface {
	Record(event Event) error
}

// StatsSource reports aggregate onboarding statistics.
type StatsSource interface {
	Stats() (*Stats, error)
}
