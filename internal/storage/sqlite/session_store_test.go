package sqlite

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	engine := onboarding.NewEngine(nil)
	state, err := engine.SubmitAnswer(engine.Start(), "Yes, let's get started!")
	if err != nil {
		t.Fatal(err)
	}
	state, err = engine.SubmitAnswer(state, "I exercise regularly but want to improve my routine")
	if err != nil {
		t.Fatal(err)
	}
	return session.NewSession(engine.Flow(), state, time.Now().UTC().Truncate(time.Second))
}

func TestSessionStore_Save_Get(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	sess := newTestSession(t)

	if err := store.Save(sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.FlowID != sess.FlowID {
		t.Errorf("FlowID = %q; want %q", loaded.FlowID, sess.FlowID)
	}
	if loaded.Status != session.StatusActive {
		t.Errorf("Status = %q; want %q", loaded.Status, session.StatusActive)
	}
	if !reflect.DeepEqual(loaded.State, sess.State) {
		t.Errorf("State = %+v; want %+v", loaded.State, sess.State)
	}
	if loaded.CompletedAt != nil {
		t.Errorf("CompletedAt = %v; want nil", loaded.CompletedAt)
	}
}

func TestSessionStore_Upsert(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	sess := newTestSession(t)
	store.Save(sess)

	done := time.Now().UTC().Truncate(time.Second)
	sess.Status = session.StatusCompleted
	sess.CompletedAt = &done
	sess.Narrative = "Welcome!"
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}

	loaded, _ := store.Get(sess.ID)
	if loaded.Status != session.StatusCompleted {
		t.Errorf("Status = %q; want %q", loaded.Status, session.StatusCompleted)
	}
	if loaded.Narrative != "Welcome!" {
		t.Errorf("Narrative = %q; want Welcome!", loaded.Narrative)
	}
	if loaded.CompletedAt == nil || !loaded.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v; want %v", loaded.CompletedAt, done)
	}

	counts, err := store.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[session.StatusCompleted] != 1 || counts[session.StatusActive] != 0 {
		t.Errorf("CountByStatus() = %v", counts)
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	store := NewSessionStore(openTestDB(t))

	if _, err := store.Get("nonexistent"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() error = %v; want ErrNotFound", err)
	}
	if err := store.Delete("nonexistent"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Delete() error = %v; want ErrNotFound", err)
	}
}

func TestSessionStore_ListDelete(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	s1 := newTestSession(t)
	s2 := newTestSession(t)
	s2.CreatedAt = s1.CreatedAt.Add(time.Minute)
	store.Save(s1)
	store.Save(s2)

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != s2.ID {
		t.Errorf("List() = %v; want newest %q first", ids, s2.ID)
	}

	if err := store.Delete(s1.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ids, _ = store.List()
	if len(ids) != 1 {
		t.Errorf("List() after delete returned %d items; want 1", len(ids))
	}
}

func TestSessionStore_WithService(t *testing.T) {
	db := openTestDB(t)
	svc := session.NewService(NewSessionStore(db), onboarding.NewEngine(nil))
	svc.SetAnalysisDelay(0)
	analytics := NewAnalyticsStore(db)
	svc.SetRecorder(analytics)
	t.Cleanup(svc.Close)

	ctx := t.Context()
	sess, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Answer(ctx, sess.ID, "Yes, let's get started!"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if _, err := svc.AnswerText(ctx, sess.ID, "used to be active"); err != nil {
		t.Fatalf("AnswerText() error = %v", err)
	}

	loaded, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.State.Profile.ExerciseHistory != "I used to be active but life got in the way" {
		t.Errorf("ExerciseHistory = %q", loaded.State.Profile.ExerciseHistory)
	}

	stats, err := analytics.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Started != 1 {
		t.Errorf("Started = %d; want 1", stats.Started)
	}
	if len(stats.Steps) != 2 || stats.Steps[0].StepID != "welcome" || stats.Steps[1].StepID != "exercise_history" {
		t.Errorf("Steps = %+v; want welcome then exercise_history", stats.Steps)
	}
}
