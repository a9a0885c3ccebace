package scheduler

import "time"

// TargetStatus represents a target's lifecycle state
type TargetStatus string

const (
	StatusPending      TargetStatus = "pending"
	StatusSkipped      TargetStatus = "skipped" // Terminal: policy match, no container created
	StatusProvisioning TargetStatus = "provisioning"
	StatusRunning      TargetStatus = "running"
	StatusSucceeded    TargetStatus = "succeeded"
	StatusFailed       TargetStatus = "failed"
	StatusDisposing    TargetStatus = "disposing"
	StatusDeleted      TargetStatus = "deleted"   // Terminal: instance removed
	StatusPreserved    TargetStatus = "preserved" // Terminal: instance renamed for inspection
)

// TargetState tracks the current state of one target
type TargetState struct {
	Target      string
	Status      TargetStatus
	SkipReason  string
	ExitStatus  int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       error
}

// ValidTransitions defines allowed state transitions
var ValidTransitions = map[TargetStatus][]TargetStatus{
	StatusPending:      {StatusSkipped, StatusProvisioning},
	StatusProvisioning: {StatusRunning, StatusDisposing},
	StatusRunning:      {StatusSucceeded, StatusFailed},
	StatusSucceeded:    {StatusDisposing},
	StatusFailed:       {StatusDisposing},
	StatusDisposing:    {StatusDeleted, StatusPreserved},
	StatusSkipped:      {},
	StatusDeleted:      {},
	StatusPreserved:    {},
}

// IsTerminal returns true if the status is a final state
func (s TargetStatus) IsTerminal() bool {
	return s == StatusSkipped || s == StatusDeleted || s == StatusPreserved
}

// CanTransition checks if a transition from -> to is valid
func CanTransition(from, to TargetStatus) bool {
	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// NewTargetState creates initial state for a target (status = pending)
func NewTargetState(target string) *TargetState {
	return &TargetState{
		Target: target,
		Status: StatusPending,
	}
}
