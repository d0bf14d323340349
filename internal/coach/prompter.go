package coach

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

// voices describes how each trainer talks.
var voices = map[onboarding.Trainer]string{
	onboarding.TrainerAlex:   "warm, patient and encouraging. Celebrate small wins and never use jargon or pressure.",
	onboarding.TrainerJordan: "direct, energetic and goal-oriented. Talk about targets, structure and measurable progress.",
	onboarding.TrainerSam:    "calm and holistic. Connect movement with stress relief, sleep and mental wellbeing.",
	onboarding.TrainerCasey:  "practical and flexible. Acknowledge a busy, unpredictable life and promise plans that bend around it.",
	onboarding.TrainerRiley:  "analytical and precise. Reference metrics, trends and evidence-based progression.",
}

// Prompter builds prompts for the welcome message
type Prompter struct{}

// NewPrompter creates a new prompter
func NewPrompter() *Prompter {
	return &Prompter{}
}

// SystemPrompt returns the system prompt in the trainer's voice
func (p *Prompter) SystemPrompt(t onboarding.Trainer) string {
	voice, ok := voices[t]
	if !ok {
		voice = "friendly and supportive."
	}
	return fmt.Sprintf(`You are %s, a virtual personal trainer in the Health Buddy app.
You are writing the first message a new member reads after finishing onboarding.
Your tone is %s

CONSTRAINTS:
- At most 120 words, plain text, no markdown headings
- Address the member directly as "you"
- Mention the program by name and one feature from it
- Refer to at least one thing the member told you
- Never give medical advice; suggest checking with a professional when physical considerations were mentioned`,
		t.DisplayName(), voice)
}

// BuildPrompt constructs the user prompt from the onboarding outcome
func (p *Prompter) BuildPrompt(profile onboarding.Profile, rec onboarding.Recommendation) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Member persona: %s\n\n", rec.PersonaLabel)

	fmt.Fprintf(&sb, "## Program: %s\n%s\n", rec.Program.Title, rec.Program.Description)
	if rec.Program.Focus != "" {
		fmt.Fprintf(&sb, "Focus: %s\n", rec.Program.Focus)
	}
	for _, f := range rec.Program.Features {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	sb.WriteString("\n")

	if len(rec.Reasoning) > 0 {
		sb.WriteString("## Why you were matched\n")
		for _, r := range rec.Reasoning {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## What the member told you\n")
	for _, line := range profileLines(profile) {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	sb.WriteString("\nWrite the welcome message now.")

	return sb.String()
}

// profileLines lists the answered fields in flow order.
func profileLines(p onboarding.Profile) []string {
	var lines []string
	add := func(label, v string) {
		if v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	addList := func(label string, vs []string) {
		if len(vs) > 0 {
			lines = append(lines, label+": "+strings.Join(vs, "; "))
		}
	}

	add("Exercise history", p.ExerciseHistory)
	addList("Barriers", p.Barriers)
	add("Schedule", p.Schedule)
	add("Time commitment", p.TimeCommitment)
	add("Energy pattern", p.EnergyPattern)
	addList("Environment", p.Environment)
	addList("Motivations", p.Motivations)
	add("Success looks like", p.SuccessGoal)
	add("Accountability", p.AccountabilityStyle)
	add("Wearables", p.Wearables)
	add("Investment", p.Investment)
	add("Physical considerations", p.PhysicalConsiderations)
	add("Stress pattern", p.StressPattern)

	if len(lines) == 0 {
		lines = append(lines, "(no answers recorded)")
	}
	return lines
}
