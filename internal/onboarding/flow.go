package onboarding

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed flows/default.yaml
var defaultFlowYAML []byte

// StepType tags how a step collects input.
type StepType string

const (
	StepConfirmation         StepType = "confirmation"
	StepSingleChoice         StepType = "single_choice"
	StepSingleChoiceOptional StepType = "single_choice_optional"
	StepMultipleChoice       StepType = "multiple_choice"
	StepAnalysis             StepType = "analysis"
	StepSummary              StepType = "summary"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepConfirmation, StepSingleChoice, StepSingleChoiceOptional,
		StepMultipleChoice, StepAnalysis, StepSummary:
		return true
	}
	return false
}

// IsChoice reports whether the step presents a list of options.
func (t StepType) IsChoice() bool {
	return t == StepSingleChoice || t == StepSingleChoiceOptional || t == StepMultipleChoice
}

// Step is one questionnaire unit.
type Step struct {
	ID      string   `yaml:"id" json:"id"`
	Phase   string   `yaml:"phase" json:"phase"`
	Type    StepType `yaml:"type" json:"type"`
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Field   Field    `yaml:"field,omitempty" json:"field,omitempty"`
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`
}

// HasOption reports whether value is one of the step's options.
func (s Step) HasOption(value string) bool {
	for _, o := range s.Options {
		if o == value {
			return true
		}
	}
	return false
}

// Skippable reports whether the step accepts an explicit skip.
func (s Step) Skippable() bool {
	return s.Type == StepSingleChoiceOptional
}

// flowFile is the YAML document layout of a flow catalogue.
type flowFile struct {
	ID      string `yaml:"id"`
	Version int    `yaml:"version"`
	Steps   []Step `yaml:"steps"`
}

// Flow is an immutable, ordered catalogue of steps.
type Flow struct {
	id      string
	version int
	steps   []Step
}

// NewFlow validates steps and returns a flow holding its own copy of them.
func NewFlow(id string, version int, steps []Step) (*Flow, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}
	cp := make([]Step, len(steps))
	for i, s := range steps {
		s.Options = append([]string(nil), s.Options...)
		cp[i] = s
	}
	return &Flow{id: id, version: version, steps: cp}, nil
}

// DefaultFlow returns the built-in Health Buddy questionnaire.
func DefaultFlow() *Flow {
	f, err := ParseFlow(defaultFlowYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded flow is invalid: %v", err))
	}
	return f
}

// ParseFlow decodes and validates a YAML flow document.
func ParseFlow(data []byte) (*Flow, error) {
	var ff flowFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidFlow, err)
	}
	return NewFlow(ff.ID, ff.Version, ff.Steps)
}

// LoadFlow reads a flow from a YAML file. An empty path yields DefaultFlow.
func LoadFlow(path string) (*Flow, error) {
	if path == "" {
		return DefaultFlow(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}
	return ParseFlow(data)
}

// ID returns the catalogue identifier.
func (f *Flow) ID() string { return f.id }

// Version returns the catalogue version.
func (f *Flow) Version() int { return f.version }

// Len returns the number of entries, including the terminal summary.
func (f *Flow) Len() int { return len(f.steps) }

// StepAt returns the step at index, or ErrOutOfRangeStep.
func (f *Flow) StepAt(index int) (Step, error) {
	if index < 0 || index >= len(f.steps) {
		return Step{}, fmt.Errorf("%w: %d (flow has %d steps)", ErrOutOfRangeStep, index, len(f.steps))
	}
	s := f.steps[index]
	s.Options = append([]string(nil), s.Options...)
	return s, nil
}

// Steps returns a copy of all steps in order.
func (f *Flow) Steps() []Step {
	out := make([]Step, len(f.steps))
	for i := range f.steps {
		out[i], _ = f.StepAt(i)
	}
	return out
}

// IndexOf returns the index of the step with the given ID, or -1.
func (f *Flow) IndexOf(id string) int {
	for i, s := range f.steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidFlow)
	}

	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			return fmt.Errorf("%w: step %d has no id", ErrInvalidFlow, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidFlow, s.ID)
		}
		seen[s.ID] = true

		if !s.Type.Valid() {
			return fmt.Errorf("%w: step %q has unknown type %q", ErrInvalidFlow, s.ID, s.Type)
		}
		if s.Field != "" && !s.Field.Known() {
			return fmt.Errorf("%w: step %q: %v %q", ErrInvalidFlow, s.ID, ErrUnknownField, s.Field)
		}
		if s.Type.IsChoice() {
			if len(s.Options) == 0 {
				return fmt.Errorf("%w: choice step %q has no options", ErrInvalidFlow, s.ID)
			}
			if s.Field == "" {
				return fmt.Errorf("%w: choice step %q has no field", ErrInvalidFlow, s.ID)
			}
		}
		if s.Type == StepMultipleChoice && !s.Field.Accumulating() {
			return fmt.Errorf("%w: multiple choice step %q targets scalar field %q", ErrInvalidFlow, s.ID, s.Field)
		}
		if s.Type == StepSummary && i != len(steps)-1 {
			return fmt.Errorf("%w: summary step %q must be last", ErrInvalidFlow, s.ID)
		}
	}

	if steps[len(steps)-1].Type != StepSummary {
		return fmt.Errorf("%w: last step must be a summary", ErrInvalidFlow)
	}
	return nil
}
