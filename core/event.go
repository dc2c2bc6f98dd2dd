package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies what an Event reports.
type EventType string

const (
	// EventModelDelta carries a partial model output chunk while streaming.
	EventModelDelta EventType = "model_delta"
	// EventPlanning reports a completed planning step.
	EventPlanning EventType = "planning"
	// EventAction reports a completed action step (code or tool calls).
	EventAction EventType = "action"
	// EventFinalAnswer carries the run's final answer; it is the last event of a successful run.
	EventFinalAnswer EventType = "final_answer"
	// EventError reports a step-local error the agent will try to recover from.
	EventError EventType = "error"
)

// Event is the unit streamed to callers while an agent runs. After emission it
// should be treated as immutable.
//
// Content holds the model output for model_delta / planning / action events,
// Observation the text fed back to the model, Output the action or final answer
// value.
type Event struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Author      string    `json:"author"`
	Type        EventType `json:"type"`
	Step        int       `json:"step"`
	Content     *Content  `json:"content,omitempty"`
	Observation string    `json:"observation,omitempty"`
	Output      any       `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	Partial     bool      `json:"partial,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent creates a bare event authored by 'author' bound to a run.
func NewEvent(runID, author string, typ EventType, step int) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Type:      typ,
		Step:      step,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for events and runs.
func NewID() string { return uuid.NewString() }

// IsFinal reports whether the event carries the final answer.
func (e Event) IsFinal() bool { return e.Type == EventFinalAnswer }

// Text returns the text of the event content, if any.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}
