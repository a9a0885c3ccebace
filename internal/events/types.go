package events

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a single occurrence in the benchmark run lifecycle
type Event struct {
	// Time is when the event occurred (set by bus on emit)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// Target is the target name this event relates to (empty for run-level events)
	Target string `json:"target,omitempty"`

	// Instance is the container instance name (empty if not container-related)
	Instance string `json:"instance,omitempty"`

	// Status is the translated exit status (nil if not outcome-related)
	Status *int `json:"status,omitempty"`

	// Payload contains event-specific data (type varies by event)
	Payload any `json:"payload,omitempty"`

	// Error contains error message if this is a failure event
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category
type EventType string

// Run lifecycle events
const (
	RunStarted   EventType = "run.started"
	RunCompleted EventType = "run.completed"
	RunFailed    EventType = "run.failed"
)

// Build stage events
const (
	BuildStarted   EventType = "build.started"
	BuildPackaged  EventType = "build.packaged"
	BuildCompleted EventType = "build.completed"
	BuildFailed    EventType = "build.failed"
	BuildSkipped   EventType = "build.skipped"
)

// Target lifecycle events
const (
	TargetSkipped      EventType = "target.skipped"
	TargetProvisioning EventType = "target.provisioning"
	TargetRunning      EventType = "target.running"
	TargetSucceeded    EventType = "target.succeeded"
	TargetFailed       EventType = "target.failed"
	TargetDeleted      EventType = "target.deleted"
	TargetPreserved    EventType = "target.preserved"
)

// Artifact collection events
const (
	LedgerAppended  EventType = "ledger.appended"
	ReportCollected EventType = "report.collected"
)

// NewEvent creates an event with the given type and target
func NewEvent(eventType EventType, target string) Event {
	return Event{
		Type:   eventType,
		Target: target,
	}
}

// WithInstance returns a copy of the event with the instance name set
func (e Event) WithInstance(instance string) Event {
	e.Instance = instance
	return e
}

// WithStatus returns a copy of the event with the exit status set
func (e Event) WithStatus(status int) Event {
	e.Status = &status
	return e
}

// WithPayload returns a copy of the event with the payload set
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event with the error message set
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed")
}

// String returns a human-readable representation of the event
func (e Event) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))

	if e.Target != "" {
		parts = append(parts, e.Target)
	}

	if e.Instance != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.Instance))
	}

	if e.Status != nil {
		parts = append(parts, fmt.Sprintf("status=%d", *e.Status))
	}

	return strings.Join(parts, " ")
}
