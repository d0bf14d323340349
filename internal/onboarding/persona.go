package onboarding

import (
	"slices"
	"strings"
)

// Persona is a coarse behavioral archetype derived from a profile.
type Persona string

const (
	PersonaCorporateMillennial Persona = "corporate_millennial"
	PersonaHealthConsciousGenX Persona = "health_conscious_gen_x"
	PersonaReluctantExerciser  Persona = "reluctant_exerciser"
	PersonaHealthEnthusiast    Persona = "health_enthusiast"
)

var personaLabels = map[Persona]string{
	PersonaCorporateMillennial: "Corporate Millennial",
	PersonaHealthConsciousGenX: "Health-Conscious Gen X",
	PersonaReluctantExerciser:  "Reluctant Exerciser",
	PersonaHealthEnthusiast:    "Health Enthusiast",
}

// Personas lists every persona in decision-tree order.
var Personas = []Persona{
	PersonaCorporateMillennial,
	PersonaHealthConsciousGenX,
	PersonaReluctantExerciser,
	PersonaHealthEnthusiast,
}

// Valid reports whether p is one of the four personas.
func (p Persona) Valid() bool {
	_, ok := personaLabels[p]
	return ok
}

// Label returns the display label, e.g. "Reluctant Exerciser".
func (p Persona) Label() string { return personaLabels[p] }

// Option texts the classifier keys on.
const (
	barrierTime          = "Not enough time in my schedule"
	barrierFamily        = "Family/caring responsibilities"
	barrierStress        = "Stress and work pressures"
	barrierSelfConscious = "Feeling self-conscious or intimidated"
	motivationFamily     = "Setting a good example for family"
	motivationPreventive = "Preventive health/medical reasons"
	historyOverwhelming  = "overwhelming"
	historyStartingOut   = "starting out"
)

// Classify derives the persona from a profile snapshot. Branches are evaluated
// in order and the first match wins.
func Classify(p Profile) Persona {
	overwhelmedHistory := strings.Contains(p.ExerciseHistory, historyOverwhelming)
	overwhelmed := overwhelmedHistory || slices.Contains(p.Barriers, barrierSelfConscious)
	beginner := strings.Contains(p.ExerciseHistory, historyStartingOut)

	pressured := slices.Contains(p.Barriers, barrierTime) ||
		slices.Contains(p.Barriers, barrierFamily) ||
		slices.Contains(p.Barriers, barrierStress)

	switch {
	case overwhelmedHistory:
		// An overwhelming history outranks every other signal.
		return PersonaReluctantExerciser
	case pressured && slices.Contains(p.Motivations, motivationFamily):
		return PersonaCorporateMillennial
	case slices.Contains(p.Motivations, motivationPreventive) && !overwhelmed && !beginner:
		return PersonaHealthConsciousGenX
	case overwhelmed || beginner:
		return PersonaReluctantExerciser
	default:
		return PersonaHealthEnthusiast
	}
}
