package queue_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/queue"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

func newActiveSession(t *testing.T) (*onboarding.Engine, *session.Session) {
	t.Helper()
	engine := onboarding.NewEngine(nil)
	sess := session.NewSession(engine.Flow(), engine.Start(), time.Now().UTC())
	return engine, sess
}

// completedSession fakes a finished session without walking the flow.
func completedSession(t *testing.T) *session.Session {
	t.Helper()
	_, sess := newActiveSession(t)

	scores := onboarding.Scoreboard{onboarding.TrainerSam: 9, onboarding.TrainerAlex: 4}
	profile := onboarding.Profile{ExerciseHistory: "I find exercise overwhelming"}
	rec := onboarding.Compose(profile, scores)
	done := sess.CreatedAt.Add(5 * time.Minute)

	sess.State.Complete = true
	sess.State.Profile = profile
	sess.State.Scores = scores
	sess.State.Recommendation = &rec
	sess.Status = session.StatusCompleted
	sess.CompletedAt = &done
	return sess
}

func TestNewCompletionEvent(t *testing.T) {
	sess := completedSession(t)

	ev, err := queue.NewCompletionEvent(sess)
	if err != nil {
		t.Fatalf("NewCompletionEvent() error = %v", err)
	}
	if ev.SessionID != sess.ID {
		t.Errorf("SessionID = %q; want %q", ev.SessionID, sess.ID)
	}
	if ev.Persona != onboarding.PersonaReluctantExerciser {
		t.Errorf("Persona = %q; want reluctant exerciser", ev.Persona)
	}
	if ev.Trainer != onboarding.TrainerSam {
		t.Errorf("Trainer = %q; want sam", ev.Trainer)
	}
	if ev.Program == "" {
		t.Error("Program should be set")
	}
	if !ev.CompletedAt.Equal(*sess.CompletedAt) {
		t.Errorf("CompletedAt = %v; want %v", ev.CompletedAt, *sess.CompletedAt)
	}
	if ev.Session != sess {
		t.Error("event should carry the session snapshot")
	}
}

func TestNewCompletionEvent_Incomplete(t *testing.T) {
	_, sess := newActiveSession(t)

	if _, err := queue.NewCompletionEvent(sess); !errors.Is(err, queue.ErrIncompleteSession) {
		t.Errorf("NewCompletionEvent() error = %v; want ErrIncompleteSession", err)
	}
}

func TestCompletionEvent_JSONCarriesSession(t *testing.T) {
	ev, err := queue.NewCompletionEvent(completedSession(t))
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var decoded queue.CompletionEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Session == nil {
		t.Fatal("decoded event lost its session")
	}
	rec, ok := decoded.Session.Recommendation()
	if !ok {
		t.Fatal("decoded session should still be complete")
	}
	if rec.Trainer != onboarding.TrainerSam {
		t.Errorf("decoded trainer = %q; want sam", rec.Trainer)
	}
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := queue.DefaultConsumerConfig()

	if cfg.Workers != 2 {
		t.Errorf("Default Workers = %d; want 2", cfg.Workers)
	}
	if cfg.Prefetch != 1 {
		t.Errorf("Default Prefetch = %d; want 1", cfg.Prefetch)
	}
	if cfg.Timeout <= 0 {
		t.Error("Timeout should be positive")
	}
}
