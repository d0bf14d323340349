package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNotComplete      = errors.New("onboarding not complete")
)

// DefaultAnalysisDelay is how long a session rests on the trainer analysis step
// before it advances on its own.
const DefaultAnalysisDelay = 3 * time.Second

const opAnalysis = "analysis"

// Service manages onboarding sessions. Transitions on the same session are
// serialised; the engine itself is stateless.
type Service struct {
	store  SessionStore
	engine *onboarding.Engine
	logger *slog.Logger
	now    func() time.Time

	analysisDelay time.Duration

	narrator  Narrator  // Optional: personalised welcome text
	archive   Archive   // Optional: completed-session archive
	publisher Publisher // Optional: completion events
	recorder  Recorder  // Optional: funnel analytics

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewService creates a new session service
func NewService(store SessionStore, engine *onboarding.Engine) *Service {
	return &Service{
		store:         store,
		engine:        engine,
		logger:        slog.Default().With("component", "session"),
		now:           time.Now,
		analysisDelay: DefaultAnalysisDelay,
		timers:        make(map[string]*time.Timer),
	}
}

// SetAnalysisDelay sets the analysis pause. Zero or less advances immediately.
func (s *Service) SetAnalysisDelay(d time.Duration) {
	s.analysisDelay = d
}

// SetNarrator sets the narrator used on completion
func (s *Service) SetNarrator(n Narrator) {
	s.narrator = n
}

// SetArchive sets the archive that receives completed sessions
func (s *Service) SetArchive(a Archive) {
	s.archive = a
}

// SetPublisher sets the completion event publisher
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetRecorder sets the analytics event recorder
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Engine returns the flow engine backing the service.
func (s *Service) Engine() *onboarding.Engine {
	return s.engine
}

// Create starts a new onboarding session
func (s *Service) Create(ctx context.Context) (*Session, error) {
	sess := NewSession(s.engine.Flow(), s.engine.Start(), s.now())

	s.mu.Lock()
	err := s.store.Save(sess)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("onboarding started", "session_id", sess.ID, "flow", sess.FlowID)
	s.record(Event{Type: EventStarted, SessionID: sess.ID})
	return sess, nil
}

// Get retrieves a session by ID
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}
	s.resumeAnalysis(sess)
	return sess, nil
}

// List returns all sessions, newest first
func (s *Service) List(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		s.resumeAnalysis(sess)
		sessions = append(sessions, sess)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Delete removes a session
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimer(id)
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Abandon marks an active session abandoned. It accepts no further input.
func (s *Service) Abandon(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive() {
		return nil, ErrSessionNotActive
	}

	s.stopTimer(id)
	sess.abandon(s.now())
	if err := s.store.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("onboarding abandoned", "session_id", id, "step", sess.State.StepIndex)
	s.record(Event{Type: EventAbandoned, SessionID: id, StepID: s.stepID(sess.State)})
	return sess, nil
}

// Answer submits a single-choice or confirmation answer
func (s *Service) Answer(ctx context.Context, id, value string) (*Session, error) {
	return s.transition(ctx, id, "answer", func(st onboarding.SessionState) (onboarding.SessionState, error) {
		return s.engine.SubmitAnswer(st, value)
	})
}

// Select adds an option to the current multiple-choice selection
func (s *Service) Select(ctx context.Context, id, value string) (*Session, error) {
	return s.transition(ctx, id, "select", func(st onboarding.SessionState) (onboarding.SessionState, error) {
		return s.engine.ToggleMultiSelect(st, value)
	})
}

// Confirm finishes the current multiple-choice step
func (s *Service) Confirm(ctx context.Context, id string) (*Session, error) {
	return s.transition(ctx, id, "confirm", s.engine.ConfirmMultiSelect)
}

// Skip passes over an optional step
func (s *Service) Skip(ctx context.Context, id string) (*Session, error) {
	return s.transition(ctx, id, "skip", s.engine.Skip)
}

// AnswerText submits free text, matched against the current step's options
func (s *Service) AnswerText(ctx context.Context, id, text string) (*Session, error) {
	return s.transition(ctx, id, "text", func(st onboarding.SessionState) (onboarding.SessionState, error) {
		return s.engine.SubmitText(st, text)
	})
}

// CompleteAnalysis advances a session resting on the analysis step. It is
// normally called by the analysis timer.
func (s *Service) CompleteAnalysis(ctx context.Context, id string) (*Session, error) {
	return s.transition(ctx, id, opAnalysis, s.engine.CompleteAnalysis)
}

// Recommendation returns the recommendation of a completed session
func (s *Service) Recommendation(ctx context.Context, id string) (*onboarding.Recommendation, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, ok := sess.Recommendation()
	if !ok {
		return nil, ErrNotComplete
	}
	return &rec, nil
}

// ResumePending re-arms the analysis timer of every stored session that was
// left on the analysis step, for example by a restart. It returns how many
// sessions were resumed.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.store.List()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}
		sess, err := s.load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		if s.resumeAnalysis(sess) {
			resumed++
		}
	}
	return resumed, nil
}

// Close stops all pending analysis timers. Sessions left on the analysis
// step are picked up again by the next Service over the same store.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id := range s.timers {
		s.stopTimer(id)
	}
}

func (s *Service) transition(ctx context.Context, id, op string, fn func(onboarding.SessionState) (onboarding.SessionState, error)) (*Session, error) {
	s.mu.Lock()
	sess, err := s.load(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !sess.IsActive() {
		s.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	if op != opAnalysis {
		s.resumeAnalysis(sess)
	}

	stepID := s.stepID(sess.State)
	next, err := fn(sess.State)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sess.apply(next, s.now())
	if err := s.store.Save(sess); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("save session: %w", err)
	}
	awaiting := s.engine.AwaitingAnalysis(next)
	if awaiting && s.analysisDelay > 0 {
		s.scheduleAnalysis(id, s.analysisDelay)
	}
	s.mu.Unlock()

	s.logger.Debug("onboarding transition", "session_id", id, "op", op, "step", next.StepIndex)
	s.record(Event{Type: EventAnswered, SessionID: id, StepID: stepID, Data: map[string]string{"op": op}})

	if awaiting && s.analysisDelay <= 0 {
		return s.CompleteAnalysis(ctx, id)
	}
	if sess.Status == StatusCompleted {
		s.completed(ctx, sess)
	}
	return sess, nil
}

// completed runs the completion hooks. Hook failures are logged; the
// recommendation itself is already persisted.
func (s *Service) completed(ctx context.Context, sess *Session) {
	rec, _ := sess.Recommendation()
	s.logger.Info("onboarding completed",
		"session_id", sess.ID,
		"persona", rec.Persona,
		"trainer", rec.Trainer,
	)

	s.record(Event{
		Type:      EventCompleted,
		SessionID: sess.ID,
		Data:      map[string]string{"persona": string(rec.Persona), "trainer": string(rec.Trainer)},
	})

	if s.narrator != nil {
		text, err := s.narrator.Narrate(ctx, sess.State.Profile, rec)
		if err != nil {
			s.logger.Warn("narration failed", "session_id", sess.ID, "error", err)
		} else if text != "" {
			sess.Narrative = text
			s.saveNarrative(sess.ID, text)
		}
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, sess); err != nil {
			s.logger.Warn("failed to archive session", "session_id", sess.ID, "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCompletion(ctx, sess); err != nil {
			s.logger.Warn("failed to publish completion", "session_id", sess.ID, "error", err)
		}
	}
}

// saveNarrative stores text on the current copy of the session. Narration
// runs without the lock, so the session may have been deleted meanwhile.
func (s *Service) saveNarrative(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Get(id)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("session deleted during narration, narrative dropped", "session_id", id)
		return
	}
	if err != nil {
		s.logger.Warn("failed to reload session for narrative", "session_id", id, "error", err)
		return
	}
	current.Narrative = text
	if err := s.store.Save(current); err != nil {
		s.logger.Warn("failed to save narrative", "session_id", id, "error", err)
	}
}

func (s *Service) record(ev Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ev); err != nil {
		s.logger.Warn("failed to record event", "type", ev.Type, "session_id", ev.SessionID, "error", err)
	}
}

func (s *Service) stepID(st onboarding.SessionState) string {
	step, err := s.engine.CurrentStep(st)
	if err != nil {
		return ""
	}
	return step.ID
}

// scheduleAnalysis must be called with s.mu held. The timer stays in
// s.timers until CompleteAnalysis returns so load does not arm a second one.
func (s *Service) scheduleAnalysis(id string, after time.Duration) {
	if s.closed {
		return
	}
	s.stopTimer(id)

	var t *time.Timer
	t = time.AfterFunc(after, func() {
		if _, err := s.CompleteAnalysis(context.Background(), id); err != nil {
			s.logger.Debug("analysis timer did not advance", "session_id", id, "error", err)
		}

		s.mu.Lock()
		if s.timers[id] == t {
			delete(s.timers, id)
		}
		s.mu.Unlock()
	})
	s.timers[id] = t
}

// resumeAnalysis arms the timer of a session found resting on the analysis
// step with none pending, for the time it still had left. Must be called
// with s.mu held.
func (s *Service) resumeAnalysis(sess *Session) bool {
	if s.closed || !sess.IsActive() || !s.engine.AwaitingAnalysis(sess.State) {
		return false
	}
	if _, ok := s.timers[sess.ID]; ok {
		return false
	}
	remaining := sess.UpdatedAt.Add(s.analysisDelay).Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	s.logger.Info("resuming analysis", "session_id", sess.ID, "remaining", remaining)
	s.scheduleAnalysis(sess.ID, remaining)
	return true
}

// stopTimer must be called with s.mu held.
func (s *Service) stopTimer(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// load must be called with s.mu held.
func (s *Service) load(id string) (*Session, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}
