package onboarding

import (
	"sort"
	"strings"
)

// Trainer identifies one of the five virtual coaches.
type Trainer string

const (
	TrainerAlex   Trainer = "alex"
	TrainerJordan Trainer = "jordan"
	TrainerSam    Trainer = "sam"
	TrainerCasey  Trainer = "casey"
	TrainerRiley  Trainer = "riley"
)

// TrainerPriority is the fixed tie-break order: when several trainers share the
// maximum score, the one listed first wins. It is also the display order of
// the scoreboard for equal scores.
var TrainerPriority = []Trainer{TrainerAlex, TrainerJordan, TrainerSam, TrainerCasey, TrainerRiley}

var trainerNames = map[Trainer]struct{ name, title string }{
	TrainerAlex:   {"Alex", "The Motivational Champion"},
	TrainerJordan: {"Jordan", "The Results-Focused Coach"},
	TrainerSam:    {"Sam", "The Wellness Mentor"},
	TrainerCasey:  {"Casey", "The Adaptive Strategist"},
	TrainerRiley:  {"Riley", "The Data-Driven Optimizer"},
}

// Valid reports whether t is one of the five trainers.
func (t Trainer) Valid() bool {
	_, ok := trainerNames[t]
	return ok
}

// Name returns the trainer's first name, e.g. "Riley".
func (t Trainer) Name() string { return trainerNames[t].name }

// Title returns the trainer's epithet, e.g. "The Data-Driven Optimizer".
func (t Trainer) Title() string { return trainerNames[t].title }

// DisplayName returns "Name - Title".
func (t Trainer) DisplayName() string {
	n := trainerNames[t]
	return n.name + " - " + n.title
}

// Scoreboard maps every trainer to its score. Treat values as immutable:
// Score returns a new map.
type Scoreboard map[Trainer]int

// NewScoreboard returns a scoreboard with all five trainers at zero.
func NewScoreboard() Scoreboard {
	sb := make(Scoreboard, len(TrainerPriority))
	for _, t := range TrainerPriority {
		sb[t] = 0
	}
	return sb
}

// Clone returns a copy that always carries all five trainers.
func (sb Scoreboard) Clone() Scoreboard {
	out := NewScoreboard()
	for _, t := range TrainerPriority {
		out[t] = sb[t]
	}
	return out
}

// TrainerScore is one row of a ranked scoreboard.
type TrainerScore struct {
	Trainer Trainer `json:"trainer"`
	Name    string  `json:"name"`
	Score   int     `json:"score"`
}

// Ranked returns all trainers ordered by score, highest first, ties in
// TrainerPriority order.
func (sb Scoreboard) Ranked() []TrainerScore {
	out := make([]TrainerScore, 0, len(TrainerPriority))
	for _, t := range TrainerPriority {
		out = append(out, TrainerScore{Trainer: t, Name: t.DisplayName(), Score: sb[t]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Top returns the highest-scoring trainer using TrainerPriority for ties.
func (sb Scoreboard) Top() Trainer {
	best := TrainerPriority[0]
	for _, t := range TrainerPriority[1:] {
		if sb[t] > sb[best] {
			best = t
		}
	}
	return best
}

// Max returns the highest score.
func (sb Scoreboard) Max() int {
	return sb[sb.Top()]
}

// Rule awards increments when the answer contains any of its keywords.
type Rule struct {
	Keywords   []string
	Increments map[Trainer]int
}

func (r Rule) matches(value string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(value, k) {
			return true
		}
	}
	return false
}

// RuleSet holds the rules of one scored field. In an exclusive set only the
// first matching rule fires; otherwise every matching rule fires.
type RuleSet struct {
	Exclusive bool
	Rules     []Rule
}

// ScoringRules is the fixed rule table. Keywords are matched against the raw
// option text, so they must stay in sync with flows/default.yaml.
var ScoringRules = map[Field]RuleSet{
	FieldExerciseHistory: {Exclusive: true, Rules: []Rule{
		{[]string{"starting out", "overwhelming"}, map[Trainer]int{TrainerAlex: 3, TrainerSam: 2}},
		{[]string{"struggle to stay consistent"}, map[Trainer]int{TrainerCasey: 3, TrainerAlex: 2}},
		{[]string{"regularly but want to improve"}, map[Trainer]int{TrainerJordan: 3, TrainerRiley: 2}},
		{[]string{"used to be active"}, map[Trainer]int{TrainerSam: 2, TrainerCasey: 2}},
	}},
	FieldBarriers: {Rules: []Rule{
		{[]string{"Not enough time", "Family/caring responsibilities"}, map[Trainer]int{TrainerCasey: 2}},
		{[]string{"Lack of motivation", "Feeling self-conscious"}, map[Trainer]int{TrainerAlex: 2}},
		{[]string{"Stress and work pressures"}, map[Trainer]int{TrainerSam: 2}},
		{[]string{"Don't know what exercises", "Boredom with routines"}, map[Trainer]int{TrainerJordan: 1, TrainerRiley: 1}},
	}},
	FieldSchedule: {Exclusive: true, Rules: []Rule{
		{[]string{"Super busy"}, map[Trainer]int{TrainerCasey: 3}},
		{[]string{"Moderately busy"}, map[Trainer]int{TrainerSam: 2, TrainerCasey: 1}},
		{[]string{"Fairly open"}, map[Trainer]int{TrainerJordan: 2, TrainerRiley: 1}},
	}},
	FieldMotivations: {Rules: []Rule{
		{[]string{"Stress relief and mental health"}, map[Trainer]int{TrainerSam: 3}},
		{[]string{"Weight management", "Strength and fitness improvement"}, map[Trainer]int{TrainerJordan: 2}},
		{[]string{"Setting a good example for family"}, map[Trainer]int{TrainerCasey: 2, TrainerAlex: 1}},
		{[]string{"Preventive health/medical reasons"}, map[Trainer]int{TrainerRiley: 2, TrainerSam: 1}},
		{[]string{"Confidence and self-esteem"}, map[Trainer]int{TrainerAlex: 2}},
	}},
	FieldAccountabilityStyle: {Exclusive: true, Rules: []Rule{
		{[]string{"Gentle daily reminders", "Understanding support"}, map[Trainer]int{TrainerAlex: 3, TrainerSam: 2}},
		{[]string{"Achievement tracking", "Data and insights"}, map[Trainer]int{TrainerRiley: 3, TrainerJordan: 2}},
		{[]string{"Tough love", "push me"}, map[Trainer]int{TrainerJordan: 3}},
		{[]string{"Social challenges"}, map[Trainer]int{TrainerJordan: 2, TrainerAlex: 1}},
	}},
	FieldWearables: {Exclusive: true, Rules: []Rule{
		{[]string{"Apple Watch", "Garmin", "Samsung Health"}, map[Trainer]int{TrainerRiley: 2}},
		{[]string{"No wearables", "Not sure"}, map[Trainer]int{TrainerAlex: 1, TrainerSam: 1}},
	}},
	FieldInvestment: {Exclusive: true, Rules: []Rule{
		{[]string{"Premium plan"}, map[Trainer]int{TrainerRiley: 2, TrainerJordan: 1}},
		{[]string{"Free features only"}, map[Trainer]int{TrainerAlex: 1}},
	}},
	FieldStressPattern: {Exclusive: true, Rules: []Rule{
		{[]string{"kills my motivation", "too tired"}, map[Trainer]int{TrainerSam: 3, TrainerAlex: 2}},
		{[]string{"use exercise to manage stress"}, map[Trainer]int{TrainerSam: 2, TrainerJordan: 1}},
		{[]string{"varies my energy levels"}, map[Trainer]int{TrainerCasey: 3}},
	}},
}

// Score applies the rule table for one answer and returns a new scoreboard.
// Unscored fields return an unchanged copy.
func Score(sb Scoreboard, field Field, value string) Scoreboard {
	next := sb.Clone()
	set, ok := ScoringRules[field]
	if !ok {
		return next
	}
	for _, r := range set.Rules {
		if !r.matches(value) {
			continue
		}
		for t, inc := range r.Increments {
			next[t] += inc
		}
		if set.Exclusive {
			break
		}
	}
	return next
}
