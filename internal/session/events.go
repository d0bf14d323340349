package session

// EventType names an onboarding lifecycle event.
type EventType string

const (
	EventStarted   EventType = "onboarding.started"
	EventAnswered  EventType = "onboarding.answered"
	EventCompleted EventType = "onboarding.completed"
	EventAbandoned EventType = "onboarding.abandoned"
)

// Event is one recorded lifecycle event.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	StepID    string            `json:"step_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Stats summarises recorded events.
type Stats struct {
	Started        int            `json:"started"`
	Completed      int            `json:"completed"`
	Abandoned      int            `json:"abandoned"`
	CompletionRate float64        `json:"completion_rate"`
	Steps          []StepCount    `json:"steps"`
	Personas       map[string]int `json:"personas,omitempty"`
}

// StepCount is the number of distinct sessions that answered a step.
type StepCount struct {
	StepID   string `json:"step_id"`
	Sessions int    `json:"sessions"`
}
