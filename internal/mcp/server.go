package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/felixgeelhaar/healthbuddy/internal/coach"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

// ErrMissingInput is returned when a tool call lacks a required argument.
var ErrMissingInput = errors.New("missing required input")

// Server wraps the MCP server with Health Buddy onboarding tools
type Server struct {
	mcpServer *server.Server
	sessions  session.SessionService
	engine    *onboarding.Engine
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions session.SessionService
	Engine   *onboarding.Engine
	Version  string
}

// NewServer creates a new MCP server for Health Buddy
func NewServer(cfg Config) *Server {
	engine := cfg.Engine
	if engine == nil {
		engine = onboarding.NewEngine(nil)
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s := &Server{
		sessions: cfg.Sessions,
		engine:   engine,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "healthbuddy",
		Version: version,
	}, server.WithInstructions(`
Health Buddy walks a new member through a short onboarding conversation and
matches them with one of five AI personal trainers.

Available tools:
- buddy_start: Start an onboarding session and get the first question
- buddy_answer: Answer the current question (option text, option number or free text)
- buddy_select: Add an option to a multiple-choice question
- buddy_confirm: Finish a multiple-choice question
- buddy_skip: Skip an optional question
- buddy_status: Show the current question and progress
- buddy_recommendation: Get the matched trainer and program once complete
- buddy_abandon: Stop an onboarding session

Relay each question and its numbered options to the member verbatim. The
trainer analysis step advances on its own after a short pause; call
buddy_status to pick up the next question.
`))

	s.registerTools()
	return s
}

// registerTools registers all Health Buddy MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("buddy_start").
		Description("Start a Health Buddy onboarding session.").
		Handler(s.handleStart)

	s.mcpServer.Tool("buddy_answer").
		Description("Answer the current question with an option, its number, or free text.").
		Handler(s.handleAnswer)

	s.mcpServer.Tool("buddy_select").
		Description("Add an option to the current multiple-choice selection.").
		Handler(s.handleSelect)

	s.mcpServer.Tool("buddy_confirm").
		Description("Confirm the current multiple-choice selection and move on.").
		Handler(s.handleConfirm)

	s.mcpServer.Tool("buddy_skip").
		Description("Skip the current question if it is optional.").
		Handler(s.handleSkip)

	s.mcpServer.Tool("buddy_status").
		Description("Show the current question, options and progress.").
		Handler(s.handleStatus)

	s.mcpServer.Tool("buddy_recommendation").
		Description("Get the persona, matched trainer and program of a completed onboarding.").
		Handler(s.handleRecommendation)

	s.mcpServer.Tool("buddy_abandon").
		Description("Stop an onboarding session. It accepts no further answers.").
		Handler(s.handleAbandon)
}

// Input/Output types for tools

type StartInput struct{}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from buddy_start"`
}

type AnswerInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from buddy_start"`
	Value     string `json:"value,omitempty" jsonschema:"description=Exact option text or its number"`
	Text      string `json:"text,omitempty" jsonschema:"description=Free-text answer matched against the options"`
}

type SelectInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from buddy_start"`
	Value     string `json:"value" jsonschema:"description=Option text or its number"`
}

// StepOutput describes where a session stands after a tool call.
type StepOutput struct {
	SessionID        string   `json:"session_id"`
	Status           string   `json:"status"`
	Step             int      `json:"step"`
	TotalSteps       int      `json:"total_steps"`
	StepID           string   `json:"step_id,omitempty"`
	Type             string   `json:"type,omitempty"`
	Prompt           string   `json:"prompt,omitempty"`
	Options          []string `json:"options,omitempty"`
	Selection        []string `json:"selection,omitempty"`
	Skippable        bool     `json:"skippable"`
	AwaitingAnalysis bool     `json:"awaiting_analysis"`
	Complete         bool     `json:"complete"`
	Message          string   `json:"message"`
}

type RecommendationOutput struct {
	Persona      string                    `json:"persona"`
	Trainer      string                    `json:"trainer"`
	Program      string                    `json:"program"`
	Description  string                    `json:"description"`
	Focus        string                    `json:"focus,omitempty"`
	Features     []string                  `json:"features,omitempty"`
	Reasoning    []string                  `json:"reasoning,omitempty"`
	Scores       []onboarding.TrainerScore `json:"scores"`
	CallToAction string                    `json:"call_to_action"`
	Narrative    string                    `json:"narrative,omitempty"`
}

// Tool handlers

func (s *Server) handleStart(ctx context.Context, _ StartInput) (StepOutput, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return StepOutput{}, fmt.Errorf("failed to start onboarding: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleAnswer(ctx context.Context, input AnswerInput) (StepOutput, error) {
	if input.SessionID == "" {
		return StepOutput{}, fmt.Errorf("%w: session_id", ErrMissingInput)
	}

	var (
		sess *session.Session
		err  error
	)
	switch {
	case input.Value != "":
		var value string
		value, err = s.resolveValue(ctx, input.SessionID, input.Value)
		if err == nil {
			sess, err = s.sessions.Answer(ctx, input.SessionID, value)
		}
	case input.Text != "":
		sess, err = s.sessions.AnswerText(ctx, input.SessionID, input.Text)
	default:
		return StepOutput{}, fmt.Errorf("%w: value or text", ErrMissingInput)
	}
	if err != nil {
		return StepOutput{}, fmt.Errorf("answer failed: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleSelect(ctx context.Context, input SelectInput) (StepOutput, error) {
	if input.SessionID == "" || input.Value == "" {
		return StepOutput{}, fmt.Errorf("%w: session_id and value", ErrMissingInput)
	}

	value, err := s.resolveValue(ctx, input.SessionID, input.Value)
	if err != nil {
		return StepOutput{}, fmt.Errorf("select failed: %w", err)
	}
	sess, err := s.sessions.Select(ctx, input.SessionID, value)
	if err != nil {
		return StepOutput{}, fmt.Errorf("select failed: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleConfirm(ctx context.Context, input SessionInput) (StepOutput, error) {
	sess, err := s.sessions.Confirm(ctx, input.SessionID)
	if err != nil {
		return StepOutput{}, fmt.Errorf("confirm failed: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleSkip(ctx context.Context, input SessionInput) (StepOutput, error) {
	sess, err := s.sessions.Skip(ctx, input.SessionID)
	if err != nil {
		return StepOutput{}, fmt.Errorf("skip failed: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleStatus(ctx context.Context, input SessionInput) (StepOutput, error) {
	sess, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return StepOutput{}, fmt.Errorf("session not found: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleAbandon(ctx context.Context, input SessionInput) (StepOutput, error) {
	sess, err := s.sessions.Abandon(ctx, input.SessionID)
	if err != nil {
		return StepOutput{}, fmt.Errorf("failed to abandon session: %w", err)
	}
	return s.stepOutput(sess), nil
}

func (s *Server) handleRecommendation(ctx context.Context, input SessionInput) (RecommendationOutput, error) {
	rec, err := s.sessions.Recommendation(ctx, input.SessionID)
	if err != nil {
		return RecommendationOutput{}, fmt.Errorf("recommendation unavailable: %w", err)
	}

	out := RecommendationOutput{
		Persona:      rec.PersonaLabel,
		Trainer:      rec.TrainerName,
		Program:      rec.Program.Title,
		Description:  rec.Program.Description,
		Focus:        rec.Program.Focus,
		Features:     rec.Program.Features,
		Reasoning:    rec.Reasoning,
		Scores:       rec.Scores,
		CallToAction: coach.CallToAction(rec.Trainer),
	}
	if sess, err := s.sessions.Get(ctx, input.SessionID); err == nil {
		out.Narrative = sess.Narrative
	}
	return out, nil
}

// resolveValue maps an option number to its text on the session's current
// step. Anything else is passed through for the engine to validate.
func (s *Server) resolveValue(ctx context.Context, id, value string) (string, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return "", err
	}
	step, err := s.engine.CurrentStep(sess.State)
	if err != nil {
		return value, nil
	}
	if opt, ok := onboarding.OptionByNumber(step, value); ok {
		return opt, nil
	}
	return value, nil
}

func (s *Server) stepOutput(sess *session.Session) StepOutput {
	v := session.NewView(s.engine, sess)
	out := StepOutput{
		SessionID:        v.ID,
		Status:           string(v.Status),
		Step:             v.StepNumber,
		TotalSteps:       v.TotalSteps,
		Selection:        v.Selection,
		AwaitingAnalysis: v.AwaitingAnalysis,
		Complete:         v.Status == session.StatusCompleted,
	}
	if v.Step != nil {
		out.StepID = v.Step.ID
		out.Type = string(v.Step.Type)
		out.Prompt = v.Step.Prompt
		out.Options = v.Step.Options
		out.Skippable = v.Step.Skippable
	}
	out.Message = renderMessage(v)
	return out
}

// renderMessage formats the step for relaying to the member.
func renderMessage(v session.View) string {
	switch {
	case v.Status == session.StatusAbandoned:
		return "Onboarding stopped."
	case v.Status == session.StatusCompleted:
		if v.Recommendation == nil {
			return "Onboarding complete."
		}
		return fmt.Sprintf("Onboarding complete. You're matched with %s. %s",
			v.Recommendation.TrainerName, coach.CallToAction(v.Recommendation.Trainer))
	case v.Step == nil:
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d\n\n%s\n", v.StepNumber, v.TotalSteps, v.Step.Prompt)
	for i, opt := range v.Step.Options {
		marker := ""
		for _, sel := range v.Selection {
			if sel == opt {
				marker = " (selected)"
				break
			}
		}
		fmt.Fprintf(&b, "\n%d. %s%s", i+1, opt, marker)
	}

	switch {
	case v.AwaitingAnalysis:
		b.WriteString("\n\nAnalysing your answers to find your trainer...")
	case v.Step.Type == onboarding.StepMultipleChoice:
		b.WriteString("\n\nSelect all that apply, then confirm.")
	case v.Step.Skippable:
		b.WriteString("\n\nThis question is optional.")
	}
	return b.String()
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
