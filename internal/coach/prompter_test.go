package coach

import (
	"strings"
	"testing"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

func TestPrompter_SystemPrompt(t *testing.T) {
	p := NewPrompter()

	tests := []struct {
		trainer onboarding.Trainer
		contain string
	}{
		{onboarding.TrainerAlex, "Celebrate small wins"},
		{onboarding.TrainerJordan, "measurable progress"},
		{onboarding.TrainerSam, "mental wellbeing"},
		{onboarding.TrainerCasey, "unpredictable life"},
		{onboarding.TrainerRiley, "evidence-based"},
		{"unknown", "friendly and supportive"},
	}
	for _, tt := range tests {
		t.Run(string(tt.trainer), func(t *testing.T) {
			got := p.SystemPrompt(tt.trainer)
			if !strings.Contains(got, tt.contain) {
				t.Errorf("SystemPrompt(%s) should contain %q", tt.trainer, tt.contain)
			}
			if !strings.Contains(got, "Never give medical advice") {
				t.Error("SystemPrompt() should carry the constraints")
			}
		})
	}
}

func TestPrompter_BuildPrompt(t *testing.T) {
	profile, rec := sampleOutcome()
	got := NewPrompter().BuildPrompt(profile, rec)

	for _, want := range []string{
		"## Member persona: " + rec.PersonaLabel,
		"## Program: " + rec.Program.Title,
		rec.Reasoning[0],
		"Exercise history: I used to be active but life got in the way",
		"Barriers: Not enough time in my schedule; Family/caring responsibilities",
		"Wearables: Apple Watch",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("BuildPrompt() missing %q", want)
		}
	}
	if strings.Contains(got, "Schedule:") {
		t.Error("BuildPrompt() should skip unanswered fields")
	}
}

func TestProfileLines_Empty(t *testing.T) {
	lines := profileLines(onboarding.Profile{})
	if len(lines) != 1 || lines[0] != "(no answers recorded)" {
		t.Errorf("profileLines() = %v", lines)
	}
}
