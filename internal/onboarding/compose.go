package onboarding

import "log/slog"

// Program is the static plan template attached to a persona.
type Program struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Focus       string   `json:"focus"`
	Features    []string `json:"features"`
}

// Recommendation is the terminal output of an onboarding run.
type Recommendation struct {
	Persona      Persona        `json:"persona"`
	PersonaLabel string         `json:"persona_label"`
	Trainer      Trainer        `json:"trainer"`
	TrainerName  string         `json:"trainer_name"`
	Scores       []TrainerScore `json:"scores"`
	Reasoning    []string       `json:"reasoning"`
	Program      Program        `json:"program"`
}

// Fallbacks used when a lookup misses. The built-in tables are total, so these
// only apply to values that did not come from Classify or Scoreboard.Top.
const (
	FallbackPersona = PersonaHealthEnthusiast
	FallbackTrainer = TrainerAlex
)

var programs = map[Persona]Program{
	PersonaCorporateMillennial: {
		Title:       "Stress-Buster Program",
		Description: "15-minute morning energy sessions and 5-minute desk breaks. I'll remind you at optimal times and adapt when I see stressful meetings in your calendar.",
		Focus:       "Stress relief and energy - not perfect form or intensity",
		Features: []string{
			"Micro-workout integration for busy schedules",
			"Stress-focused programming",
			"Family-friendly options",
			"Calendar integration for smart timing",
			"Professional wellness support",
		},
	},
	PersonaHealthConsciousGenX: {
		Title:       "Preventive Health Program",
		Description: "30-minute structured routines with detailed progress tracking. I'll integrate with your health apps and provide weekly insights.",
		Focus:       "Evidence-based approach with health metrics",
		Features: []string{
			"Healthcare provider integration",
			"Condition-specific programming",
			"Professional consultation access",
			"Detailed health metrics tracking",
			"Travel-friendly alternatives",
		},
	},
	PersonaReluctantExerciser: {
		Title:       "Confidence Builder Journey",
		Description: "Starting with 5-minute gentle movements and celebrating every single day you show up. I'll be encouraging and patient.",
		Focus:       "Building confidence and sustainable habits",
		Features: []string{
			"Gentle onboarding with confidence-building",
			"Emotional intelligence support",
			"Simple, non-overwhelming interface",
			"Daily check-ins during habit formation",
			"Achievement recognition for small wins",
		},
	},
	PersonaHealthEnthusiast: {
		Title:       "Performance Optimization Program",
		Description: "Advanced analytics, wearable integration, and sophisticated programming to help you reach peak performance.",
		Focus:       "Data-driven optimization and advanced features",
		Features: []string{
			"Advanced AI coaching algorithms",
			"Comprehensive wearable integration",
			"Performance analytics dashboard",
			"Adaptive difficulty progression",
			"Community challenges and competitions",
		},
	},
}

var reasoning = map[Trainer][]string{
	TrainerAlex: {
		"You mentioned feeling overwhelmed or lacking confidence with exercise",
		"You prefer gentle encouragement and supportive motivation",
		"Building sustainable habits through positive reinforcement works best for you",
	},
	TrainerJordan: {
		"You're ready to be challenged and push towards specific goals",
		"You respond well to structured accountability and performance tracking",
		"You have clear fitness objectives and want to see measurable progress",
	},
	TrainerSam: {
		"Stress management and mental wellbeing are important motivators for you",
		"You prefer a holistic approach that considers mind-body connection",
		"You want exercise to be sustainable self-care, not punishment",
	},
	TrainerCasey: {
		"Your schedule is unpredictable and you need flexible solutions",
		"Family responsibilities and time constraints are major factors",
		"You need someone who can adapt plans based on your daily reality",
	},
	TrainerRiley: {
		"You're tech-savvy and interested in using data to optimize performance",
		"You want evidence-based approaches and detailed progress insights",
		"You have health metrics you want to track and improve systematically",
	},
}

// ProgramFor returns a copy of the persona's program template.
func ProgramFor(p Persona) (Program, bool) {
	prog, ok := programs[p]
	if !ok {
		return Program{}, false
	}
	prog.Features = append([]string(nil), prog.Features...)
	return prog, true
}

// ReasoningFor returns a copy of the trainer's reasoning statements.
func ReasoningFor(t Trainer) ([]string, bool) {
	r, ok := reasoning[t]
	if !ok {
		return nil, false
	}
	return append([]string(nil), r...), true
}

// Compose builds the recommendation for a profile and scoreboard.
func Compose(p Profile, sb Scoreboard) Recommendation {
	return compose(slog.Default(), Classify(p), sb)
}

func compose(logger *slog.Logger, persona Persona, sb Scoreboard) Recommendation {
	trainer := sb.Top()

	prog, ok := ProgramFor(persona)
	if !ok {
		logger.Warn("no program for persona, using fallback", "persona", persona, "fallback", FallbackPersona)
		persona = FallbackPersona
		prog, _ = ProgramFor(persona)
	}

	why, ok := ReasoningFor(trainer)
	if !ok {
		logger.Warn("no reasoning for trainer, using fallback", "trainer", trainer, "fallback", FallbackTrainer)
		trainer = FallbackTrainer
		why, _ = ReasoningFor(trainer)
	}

	return Recommendation{
		Persona:      persona,
		PersonaLabel: persona.Label(),
		Trainer:      trainer,
		TrainerName:  trainer.DisplayName(),
		Scores:       sb.Ranked(),
		Reasoning:    why,
		Program:      prog,
	}
}
