package onboarding

import (
	"fmt"
	"slices"
)

// Field names a profile attribute that a step can target.
type Field string

const (
	FieldExerciseHistory        Field = "exerciseHistory"
	FieldBarriers               Field = "barriers"
	FieldSchedule               Field = "schedule"
	FieldTimeCommitment         Field = "timeCommitment"
	FieldEnergyPattern          Field = "energyPattern"
	FieldEnvironment            Field = "environment"
	FieldMotivations            Field = "motivations"
	FieldSuccessGoal            Field = "successGoal"
	FieldAccountabilityStyle    Field = "accountabilityStyle"
	FieldWearables              Field = "wearables"
	FieldInvestment             Field = "investment"
	FieldPhysicalConsiderations Field = "physicalConsiderations"
	FieldStressPattern          Field = "stressPattern"
)

// Known reports whether f is part of the profile schema.
func (f Field) Known() bool {
	switch f {
	case FieldExerciseHistory, FieldBarriers, FieldSchedule, FieldTimeCommitment,
		FieldEnergyPattern, FieldEnvironment, FieldMotivations, FieldSuccessGoal,
		FieldAccountabilityStyle, FieldWearables, FieldInvestment,
		FieldPhysicalConsiderations, FieldStressPattern:
		return true
	}
	return false
}

// Accumulating reports whether f collects multiple distinct values.
func (f Field) Accumulating() bool {
	return f == FieldBarriers || f == FieldEnvironment || f == FieldMotivations
}

// Profile accumulates a user's answers.
type Profile struct {
	ExerciseHistory        string   `json:"exerciseHistory"`
	Barriers               []string `json:"barriers"`
	Schedule               string   `json:"schedule"`
	TimeCommitment         string   `json:"timeCommitment"`
	EnergyPattern          string   `json:"energyPattern"`
	Environment            []string `json:"environment"`
	Motivations            []string `json:"motivations"`
	SuccessGoal            string   `json:"successGoal"`
	AccountabilityStyle    string   `json:"accountabilityStyle"`
	Wearables              string   `json:"wearables"`
	Investment             string   `json:"investment"`
	PhysicalConsiderations string   `json:"physicalConsiderations"`
	StressPattern          string   `json:"stressPattern"`
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	p.Barriers = slices.Clone(p.Barriers)
	p.Environment = slices.Clone(p.Environment)
	p.Motivations = slices.Clone(p.Motivations)
	return p
}

// Value returns the scalar value of f, or "" for accumulating and unknown fields.
func (p Profile) Value(f Field) string {
	if ptr := p.scalar(f); ptr != nil {
		return *ptr
	}
	return ""
}

// Values returns a copy of the accumulated values of f.
func (p Profile) Values(f Field) []string {
	if ptr := p.list(f); ptr != nil {
		return slices.Clone(*ptr)
	}
	return nil
}

// Has reports whether the accumulating field f contains value.
func (p Profile) Has(f Field, value string) bool {
	if ptr := p.list(f); ptr != nil {
		return slices.Contains(*ptr, value)
	}
	return false
}

// Apply merges value into field and returns the updated profile. The receiver
// snapshot is left untouched. An empty field returns p unchanged; an unknown
// field returns p unchanged together with ErrUnknownField.
func Apply(p Profile, field Field, value string) (Profile, error) {
	if field == "" {
		return p, nil
	}
	if !field.Known() {
		return p, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	next := p.Clone()
	if field.Accumulating() {
		list := next.list(field)
		if !slices.Contains(*list, value) {
			*list = append(*list, value)
		}
		return next, nil
	}

	*next.scalar(field) = value
	return next, nil
}

func (p *Profile) scalar(f Field) *string {
	switch f {
	case FieldExerciseHistory:
		return &p.ExerciseHistory
	case FieldSchedule:
		return &p.Schedule
	case FieldTimeCommitment:
		return &p.TimeCommitment
	case FieldEnergyPattern:
		return &p.EnergyPattern
	case FieldSuccessGoal:
		return &p.SuccessGoal
	case FieldAccountabilityStyle:
		return &p.AccountabilityStyle
	case FieldWearables:
		return &p.Wearables
	case FieldInvestment:
		return &p.Investment
	case FieldPhysicalConsiderations:
		return &p.PhysicalConsiderations
	case FieldStressPattern:
		return &p.StressPattern
	}
	return nil
}

func (p *Profile) list(f Field) *[]string {
	switch f {
	case FieldBarriers:
		return &p.Barriers
	case FieldEnvironment:
		return &p.Environment
	case FieldMotivations:
		return &p.Motivations
	}
	return nil
}
