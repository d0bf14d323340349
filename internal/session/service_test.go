package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

type mockNarrator struct {
	text string
	err  error
}

func (m *mockNarrator) Narrate(ctx context.Context, p onboarding.Profile, rec onboarding.Recommendation) (string, error) {
	return m.text, m.err
}

type recordingSink struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (r *recordingSink) Save(ctx context.Context, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, sess.ID)
	return r.err
}

func (r *recordingSink) PublishCompletion(ctx context.Context, sess *Session) error {
	return r.Save(ctx, sess)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func setupTestService(t *testing.T) *Service {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	svc := NewService(store, onboarding.NewEngine(nil))
	svc.SetAnalysisDelay(0)
	t.Cleanup(svc.Close)
	return svc
}

// answerStep answers the current step with its first option, skipping the
// optional one. It reports false once the session is no longer active.
func answerStep(ctx context.Context, svc *Service, id string) (bool, error) {
	sess, err := svc.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !sess.IsActive() {
		return false, nil
	}
	step, _ := svc.Engine().Flow().StepAt(sess.State.StepIndex)

	switch step.Type {
	case onboarding.StepMultipleChoice:
		if _, err = svc.Select(ctx, id, step.Options[0]); err == nil {
			_, err = svc.Confirm(ctx, id)
		}
	case onboarding.StepSingleChoiceOptional:
		_, err = svc.Skip(ctx, id)
	default:
		_, err = svc.Answer(ctx, id, step.Options[0])
	}
	if err != nil {
		return false, fmt.Errorf("step %q: %w", step.ID, err)
	}
	return true, nil
}

// answerAll drives a session to completion.
func answerAll(t *testing.T, svc *Service, id string) *Session {
	t.Helper()
	ctx := context.Background()
	for {
		active, err := answerStep(ctx, svc, id)
		if err != nil {
			t.Fatal(err)
		}
		if !active {
			sess, err := svc.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			return sess
		}
	}
}

// walkToAnalysis answers steps until the session rests on the analysis step.
func walkToAnalysis(t *testing.T, svc *Service, id string) {
	t.Helper()
	ctx := context.Background()
	analysisIdx := svc.Engine().Flow().IndexOf("trainer_analysis")
	for {
		sess, err := svc.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if sess.State.StepIndex >= analysisIdx {
			return
		}
		if _, err := answerStep(ctx, svc, id); err != nil {
			t.Fatal(err)
		}
	}
}

// waitForStep polls until the session reaches index or the deadline passes.
func waitForStep(t *testing.T, svc *Service, id string, index int) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := svc.Get(context.Background(), id)
		if err == nil && loaded.State.StepIndex == index {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestService_Create(t *testing.T) {
	svc := setupTestService(t)

	sess, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID == "" {
		t.Error("Create() should generate ID")
	}
	if sess.Status != StatusActive {
		t.Errorf("Status = %q; want %q", sess.Status, StatusActive)
	}
	if sess.FlowID != "health-buddy" {
		t.Errorf("FlowID = %q; want health-buddy", sess.FlowID)
	}

	loaded, err := svc.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.State.StepIndex != 0 {
		t.Errorf("StepIndex = %d; want 0", loaded.State.StepIndex)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc := setupTestService(t)

	if _, err := svc.Get(context.Background(), "nonexistent"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() error = %v; want ErrSessionNotFound", err)
	}
}

func TestService_FullRun(t *testing.T) {
	svc := setupTestService(t)
	narrator := &mockNarrator{text: "Welcome aboard"}
	archive := &recordingSink{}
	publisher := &recordingSink{}
	svc.SetNarrator(narrator)
	svc.SetArchive(archive)
	svc.SetPublisher(publisher)

	sess, _ := svc.Create(context.Background())
	done := answerAll(t, svc, sess.ID)

	if done.Status != StatusCompleted {
		t.Fatalf("Status = %q; want %q", done.Status, StatusCompleted)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if done.Narrative != "Welcome aboard" {
		t.Errorf("Narrative = %q; want %q", done.Narrative, "Welcome aboard")
	}
	if archive.count() != 1 {
		t.Errorf("archive saves = %d; want 1", archive.count())
	}
	if publisher.count() != 1 {
		t.Errorf("published = %d; want 1", publisher.count())
	}

	rec, err := svc.Recommendation(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Recommendation() error = %v", err)
	}
	if !rec.Trainer.Valid() {
		t.Errorf("Trainer = %q is not valid", rec.Trainer)
	}

	if _, err := svc.Answer(context.Background(), sess.ID, "x"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Answer() after completion error = %v; want ErrSessionNotActive", err)
	}
}

func TestService_HookFailuresDoNotFailCompletion(t *testing.T) {
	svc := setupTestService(t)
	svc.SetNarrator(&mockNarrator{err: errors.New("llm down")})
	svc.SetArchive(&recordingSink{err: errors.New("db down")})
	svc.SetPublisher(&recordingSink{err: errors.New("broker down")})

	sess, _ := svc.Create(context.Background())
	done := answerAll(t, svc, sess.ID)

	if done.Status != StatusCompleted {
		t.Errorf("Status = %q; want %q", done.Status, StatusCompleted)
	}
	if done.Narrative != "" {
		t.Errorf("Narrative = %q; want empty", done.Narrative)
	}
}

func TestService_RecommendationBeforeCompletion(t *testing.T) {
	svc := setupTestService(t)
	sess, _ := svc.Create(context.Background())

	if _, err := svc.Recommendation(context.Background(), sess.ID); !errors.Is(err, ErrNotComplete) {
		t.Errorf("Recommendation() error = %v; want ErrNotComplete", err)
	}
}

func TestService_EngineErrorsPassThrough(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	sess, _ := svc.Create(ctx)
	svc.Answer(ctx, sess.ID, "Yes, let's get started!")

	if _, err := svc.Skip(ctx, sess.ID); !errors.Is(err, onboarding.ErrInvalidSkip) {
		t.Errorf("Skip() error = %v; want ErrInvalidSkip", err)
	}

	loaded, _ := svc.Get(ctx, sess.ID)
	if loaded.State.StepIndex != 1 {
		t.Errorf("StepIndex = %d; want 1 after rejected skip", loaded.State.StepIndex)
	}
}

func TestService_AnalysisTimer(t *testing.T) {
	svc := setupTestService(t)
	svc.SetAnalysisDelay(20 * time.Millisecond)
	ctx := context.Background()
	analysisIdx := svc.Engine().Flow().IndexOf("trainer_analysis")

	sess, _ := svc.Create(ctx)
	walkToAnalysis(t, svc, sess.ID)

	if _, err := svc.Answer(ctx, sess.ID, "x"); !errors.Is(err, onboarding.ErrAnalysisPending) {
		t.Errorf("Answer() during analysis error = %v; want ErrAnalysisPending", err)
	}
	if !waitForStep(t, svc, sess.ID, analysisIdx+1) {
		t.Error("analysis step did not advance")
	}
}

func TestService_AnalysisResumesAfterRestart(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	engine := onboarding.NewEngine(nil)
	ctx := context.Background()
	analysisIdx := engine.Flow().IndexOf("trainer_analysis")

	first := NewService(store, engine)
	first.SetAnalysisDelay(time.Hour)
	sess, _ := first.Create(ctx)
	walkToAnalysis(t, first, sess.ID)
	first.Close()

	second := NewService(store, engine)
	second.SetAnalysisDelay(50 * time.Millisecond)
	t.Cleanup(second.Close)

	if !waitForStep(t, second, sess.ID, analysisIdx+1) {
		loaded, _ := store.Get(sess.ID)
		t.Fatalf("StepIndex = %d after restart; want %d", loaded.State.StepIndex, analysisIdx+1)
	}
	if _, err := answerStep(ctx, second, sess.ID); err != nil {
		t.Errorf("input after resumed analysis: %v", err)
	}
}

func TestService_ResumePending(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	engine := onboarding.NewEngine(nil)
	ctx := context.Background()
	analysisIdx := engine.Flow().IndexOf("trainer_analysis")

	first := NewService(store, engine)
	first.SetAnalysisDelay(time.Hour)
	waiting, _ := first.Create(ctx)
	walkToAnalysis(t, first, waiting.ID)
	idle, _ := first.Create(ctx)
	first.Close()

	second := NewService(store, engine)
	second.SetAnalysisDelay(time.Hour)
	second.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	t.Cleanup(second.Close)

	n, err := second.ResumePending(ctx)
	if err != nil {
		t.Fatalf("ResumePending() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ResumePending() = %d; want 1", n)
	}

	// The delay has already elapsed, so the session advances right away.
	deadline := time.Now().Add(2 * time.Second)
	for {
		loaded, _ := store.Get(waiting.ID)
		if loaded.State.StepIndex == analysisIdx+1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("StepIndex = %d; want %d", loaded.State.StepIndex, analysisIdx+1)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if loaded, _ := store.Get(idle.ID); loaded.State.StepIndex != 0 {
		t.Errorf("idle session StepIndex = %d; want 0", loaded.State.StepIndex)
	}
	if n, _ := second.ResumePending(ctx); n != 0 {
		t.Errorf("second ResumePending() = %d; want 0", n)
	}
}

func TestService_ClosedServiceDoesNotResume(t *testing.T) {
	svc := setupTestService(t)
	svc.SetAnalysisDelay(time.Hour)
	ctx := context.Background()
	sess, _ := svc.Create(ctx)
	walkToAnalysis(t, svc, sess.ID)

	svc.Close()
	if n, err := svc.ResumePending(ctx); err != nil || n != 0 {
		t.Errorf("ResumePending() after Close = %d, %v; want 0, nil", n, err)
	}
}

type blockingNarrator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingNarrator) Narrate(ctx context.Context, p onboarding.Profile, rec onboarding.Recommendation) (string, error) {
	close(b.started)
	<-b.release
	return "welcome", nil
}

func TestService_NarrativeAfterDeleteIsDropped(t *testing.T) {
	svc := setupTestService(t)
	narrator := &blockingNarrator{started: make(chan struct{}), release: make(chan struct{})}
	svc.SetNarrator(narrator)
	ctx := context.Background()
	sess, _ := svc.Create(ctx)

	errc := make(chan error, 1)
	go func() {
		for {
			active, err := answerStep(ctx, svc, sess.ID)
			if err != nil || !active {
				errc <- err
				return
			}
		}
	}()

	select {
	case <-narrator.started:
	case err := <-errc:
		t.Fatalf("flow ended before narration: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("narrator was not called")
	}

	if err := svc.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	close(narrator.release)
	if err := <-errc; err != nil && !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("flow error = %v", err)
	}

	if got, err := svc.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete = %+v, %v; want ErrSessionNotFound", got, err)
	}
}

func TestService_NarrativeIsPersisted(t *testing.T) {
	svc := setupTestService(t)
	svc.SetNarrator(&mockNarrator{text: "Welcome aboard"})
	sess, _ := svc.Create(context.Background())
	answerAll(t, svc, sess.ID)

	loaded, err := svc.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Narrative != "Welcome aboard" {
		t.Errorf("stored Narrative = %q; want %q", loaded.Narrative, "Welcome aboard")
	}
	if loaded.Status != StatusCompleted {
		t.Errorf("stored Status = %q; want %q", loaded.Status, StatusCompleted)
	}
}

func TestService_Abandon(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	sess, _ := svc.Create(ctx)

	abandoned, err := svc.Abandon(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if abandoned.Status != StatusAbandoned {
		t.Errorf("Status = %q; want %q", abandoned.Status, StatusAbandoned)
	}
	if _, err := svc.Answer(ctx, sess.ID, "Yes, let's get started!"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Answer() error = %v; want ErrSessionNotActive", err)
	}
	if _, err := svc.Abandon(ctx, sess.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("second Abandon() error = %v; want ErrSessionNotActive", err)
	}
}

func TestService_ListAndDelete(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, _ := svc.Create(ctx)
	second, _ := svc.Create(ctx)

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d sessions; want 2", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("List()[0] = %q; want newest %q", list[0].ID, second.ID)
	}

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete() error = %v; want ErrSessionNotFound", err)
	}
}
