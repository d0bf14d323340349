package session

import (
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

// View is the client-facing snapshot of a session: where it stands in the flow
// and what the member can do next.
type View struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	FlowID      string `json:"flow_id"`
	FlowVersion int    `json:"flow_version"`

	StepNumber       int                       `json:"step_number"`
	TotalSteps       int                       `json:"total_steps"`
	Step             *StepView                 `json:"step,omitempty"`
	AwaitingAnalysis bool                      `json:"awaiting_analysis"`
	Selection        []string                  `json:"selection,omitempty"`
	Profile          onboarding.Profile        `json:"profile"`
	Scores           []onboarding.TrainerScore `json:"scores"`

	Recommendation *onboarding.Recommendation `json:"recommendation,omitempty"`
	Narrative      string                     `json:"narrative,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepView describes the current step.
type StepView struct {
	ID        string              `json:"id"`
	Phase     string              `json:"phase"`
	Type      onboarding.StepType `json:"type"`
	Prompt    string              `json:"prompt"`
	Options   []string            `json:"options,omitempty"`
	Skippable bool                `json:"skippable"`
}

// NewView builds the snapshot of sess against engine's flow.
func NewView(engine *onboarding.Engine, sess *Session) View {
	v := View{
		ID:             sess.ID,
		Status:         sess.Status,
		FlowID:         sess.FlowID,
		FlowVersion:    sess.FlowVersion,
		StepNumber:     sess.State.StepIndex + 1,
		TotalSteps:     engine.Flow().Len(),
		Selection:      sess.State.Selection,
		Profile:        sess.State.Profile,
		Scores:         sess.State.Scores.Clone().Ranked(),
		Recommendation: sess.State.Recommendation,
		Narrative:      sess.Narrative,
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
		CompletedAt:    sess.CompletedAt,
	}

	if step, err := engine.CurrentStep(sess.State); err == nil {
		v.Step = &StepView{
			ID:        step.ID,
			Phase:     step.Phase,
			Type:      step.Type,
			Prompt:    step.Prompt,
			Options:   step.Options,
			Skippable: step.Skippable(),
		}
	}
	v.AwaitingAnalysis = sess.IsActive() && engine.AwaitingAnalysis(sess.State)
	return v
}
