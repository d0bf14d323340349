package onboarding

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// AnswerSource tags how an answer entered the flow.
type AnswerSource string

const (
	SourceChoice AnswerSource = "choice"
	SourceText   AnswerSource = "text"
	SourceSkip   AnswerSource = "skip"
)

// Answer is one entry of a session's answer history.
type Answer struct {
	StepID string       `json:"step_id"`
	Field  Field        `json:"field,omitempty"`
	Value  string       `json:"value,omitempty"`
	Source AnswerSource `json:"source"`
}

// SessionState is the complete state of one onboarding run. Engine methods
// never modify the state they are given.
type SessionState struct {
	StepIndex      int             `json:"step_index"`
	Profile        Profile         `json:"profile"`
	Scores         Scoreboard      `json:"scores"`
	Selection      []string        `json:"selection,omitempty"`
	History        []Answer        `json:"history,omitempty"`
	Complete       bool            `json:"complete"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// Clone returns a deep copy. The recommendation is shared since it is never
// mutated after creation.
func (s SessionState) Clone() SessionState {
	s.Profile = s.Profile.Clone()
	s.Scores = s.Scores.Clone()
	s.Selection = slices.Clone(s.Selection)
	s.History = slices.Clone(s.History)
	return s
}

// Engine sequences a flow. It holds no per-session state and is safe for
// concurrent use.
type Engine struct {
	flow   *Flow
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine for flow. A nil flow uses DefaultFlow.
func NewEngine(flow *Flow, opts ...Option) *Engine {
	if flow == nil {
		flow = DefaultFlow()
	}
	e := &Engine{flow: flow, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Flow returns the engine's catalogue.
func (e *Engine) Flow() *Flow { return e.flow }

// Start returns the initial state: first step, empty profile, zero scores.
func (e *Engine) Start() SessionState {
	s := SessionState{Scores: NewScoreboard()}
	if first, err := e.flow.StepAt(0); err == nil && first.Type == StepSummary {
		s = e.finish(s)
	}
	return s
}

// CurrentStep returns the step the state is positioned on.
func (e *Engine) CurrentStep(s SessionState) (Step, error) {
	return e.flow.StepAt(s.StepIndex)
}

// IsComplete reports whether the state reached the terminal summary.
func (e *Engine) IsComplete(s SessionState) bool {
	return s.Complete
}

// AwaitingAnalysis reports whether the state sits on an analysis step.
func (e *Engine) AwaitingAnalysis(s SessionState) bool {
	step, err := e.flow.StepAt(s.StepIndex)
	return err == nil && !s.Complete && step.Type == StepAnalysis
}

// Recommendation returns the artifact composed at completion.
func (e *Engine) Recommendation(s SessionState) (Recommendation, bool) {
	if !s.Complete || s.Recommendation == nil {
		return Recommendation{}, false
	}
	return *s.Recommendation, true
}

// SubmitAnswer answers a confirmation or single-choice step and advances.
func (e *Engine) SubmitAnswer(s SessionState, value string) (SessionState, error) {
	return e.submit(s, value, SourceChoice)
}

// ToggleMultiSelect adds value to the current multiple-choice selection.
// Selecting an option twice is a no-op. The step index does not change.
func (e *Engine) ToggleMultiSelect(s SessionState, value string) (SessionState, error) {
	return e.toggle(s, value, SourceChoice)
}

// ConfirmMultiSelect finishes the current multiple-choice step.
func (e *Engine) ConfirmMultiSelect(s SessionState) (SessionState, error) {
	step, err := e.inputStep(s)
	if err != nil {
		return s, err
	}
	if step.Type != StepMultipleChoice {
		return s, fmt.Errorf("%w: confirm on %s step %q", ErrWrongStepType, step.Type, step.ID)
	}
	if len(s.Selection) == 0 {
		return s, ErrEmptySelection
	}

	next := s.Clone()
	next.Selection = nil
	return e.advance(s, next)
}

// Skip passes over an optional step without recording a value.
func (e *Engine) Skip(s SessionState) (SessionState, error) {
	step, err := e.inputStep(s)
	if err != nil {
		return s, err
	}
	if !step.Skippable() {
		return s, fmt.Errorf("%w: %q", ErrInvalidSkip, step.ID)
	}

	next := s.Clone()
	next.History = append(next.History, Answer{StepID: step.ID, Field: step.Field, Source: SourceSkip})
	return e.advance(s, next)
}

// CompleteAnalysis moves past an analysis step. It is driven by a timer, not
// by user input.
func (e *Engine) CompleteAnalysis(s SessionState) (SessionState, error) {
	if s.Complete {
		return s, ErrFlowComplete
	}
	step, err := e.flow.StepAt(s.StepIndex)
	if err != nil {
		return s, err
	}
	if step.Type != StepAnalysis {
		return s, fmt.Errorf("%w: %q is not an analysis step", ErrWrongStepType, step.ID)
	}
	return e.advance(s, s.Clone())
}

// SubmitText is the best-effort free-text entry point. Text is matched against
// the current step's option strings; it never overrides the structured path.
func (e *Engine) SubmitText(s SessionState, text string) (SessionState, error) {
	step, err := e.inputStep(s)
	if err != nil {
		return s, err
	}

	switch step.Type {
	case StepConfirmation:
		if normalize(text) == "" {
			return s, ErrNoTextMatch
		}
		return e.submit(s, text, SourceText)

	case StepMultipleChoice:
		if isFinishWord(text) {
			return e.ConfirmMultiSelect(s)
		}
		opt, ok := MatchOption(step, text)
		if !ok {
			return s, fmt.Errorf("%w: %q", ErrNoTextMatch, text)
		}
		return e.toggle(s, opt, SourceText)

	default:
		if step.Skippable() && isSkipWord(text) {
			return e.Skip(s)
		}
		opt, ok := MatchOption(step, text)
		if !ok {
			return s, fmt.Errorf("%w: %q", ErrNoTextMatch, text)
		}
		return e.submit(s, opt, SourceText)
	}
}

// inputStep returns the current step if it accepts user input.
func (e *Engine) inputStep(s SessionState) (Step, error) {
	if s.Complete {
		return Step{}, ErrFlowComplete
	}
	step, err := e.flow.StepAt(s.StepIndex)
	if err != nil {
		return Step{}, err
	}
	if step.Type == StepAnalysis {
		return Step{}, ErrAnalysisPending
	}
	return step, nil
}

func (e *Engine) submit(s SessionState, value string, source AnswerSource) (SessionState, error) {
	step, err := e.inputStep(s)
	if err != nil {
		return s, err
	}

	switch step.Type {
	case StepConfirmation:
		next := s.Clone()
		next.History = append(next.History, Answer{StepID: step.ID, Value: value, Source: source})
		return e.advance(s, next)

	case StepSingleChoice, StepSingleChoiceOptional:
		if !step.HasOption(value) {
			return s, fmt.Errorf("%w: %q on step %q", ErrInvalidOption, value, step.ID)
		}
		next := e.record(s.Clone(), step, value, source)
		return e.advance(s, next)

	default:
		return s, fmt.Errorf("%w: answer on %s step %q", ErrWrongStepType, step.Type, step.ID)
	}
}

func (e *Engine) toggle(s SessionState, value string, source AnswerSource) (SessionState, error) {
	step, err := e.inputStep(s)
	if err != nil {
		return s, err
	}
	if step.Type != StepMultipleChoice {
		return s, fmt.Errorf("%w: select on %s step %q", ErrWrongStepType, step.Type, step.ID)
	}
	if !step.HasOption(value) {
		return s, fmt.Errorf("%w: %q on step %q", ErrInvalidOption, value, step.ID)
	}
	if slices.Contains(s.Selection, value) {
		return s, nil
	}

	next := e.record(s.Clone(), step, value, source)
	next.Selection = append(next.Selection, value)
	return next, nil
}

// record aggregates and scores one answer.
func (e *Engine) record(s SessionState, step Step, value string, source AnswerSource) SessionState {
	profile, err := Apply(s.Profile, step.Field, value)
	if errors.Is(err, ErrUnknownField) {
		e.logger.Warn("ignoring answer for unknown field", "step", step.ID, "field", step.Field)
	} else {
		s.Profile = profile
	}
	s.Scores = Score(s.Scores, step.Field, value)
	s.History = append(s.History, Answer{StepID: step.ID, Field: step.Field, Value: value, Source: source})
	return s
}

// advance moves next one step forward. On failure prev is returned unchanged.
func (e *Engine) advance(prev, next SessionState) (SessionState, error) {
	idx := next.StepIndex + 1
	step, err := e.flow.StepAt(idx)
	if err != nil {
		e.logger.Error("sequencer advanced past last step", "index", idx, "error", err)
		return prev, err
	}
	next.StepIndex = idx
	if step.Type == StepSummary {
		next = e.finish(next)
	}
	return next, nil
}

// finish composes the recommendation once and marks the state terminal.
func (e *Engine) finish(s SessionState) SessionState {
	if s.Recommendation == nil {
		rec := compose(e.logger, Classify(s.Profile), s.Scores)
		s.Recommendation = &rec
	}
	s.Complete = true
	return s
}
