package onboarding

import "errors"

// Sequencing errors. A failed transition always returns the state it was given.
var (
	// ErrOutOfRangeStep is returned for a step index outside the catalogue.
	// Reaching it through the Engine indicates a sequencing bug.
	ErrOutOfRangeStep = errors.New("step index out of range")

	ErrInvalidSkip     = errors.New("current step cannot be skipped")
	ErrInvalidOption   = errors.New("value is not an option of the current step")
	ErrWrongStepType   = errors.New("operation not valid for current step type")
	ErrEmptySelection  = errors.New("no options selected")
	ErrAnalysisPending = errors.New("analysis in progress, input disabled")
	ErrFlowComplete    = errors.New("onboarding flow already complete")
	ErrNoTextMatch     = errors.New("text does not match any option")
)

// Data errors
var (
	ErrUnknownField = errors.New("unknown profile field")
	ErrInvalidFlow  = errors.New("invalid flow definition")
)
