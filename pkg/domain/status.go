package domain

// Status defines the lifecycle stage of a run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusHalted    Status = "halted"
	StatusFailed    Status = "failed"
)

// HaltReason explains why a run entered StatusHalted.
type HaltReason string

const (
	HaltNone        HaltReason = ""
	HaltCreditLimit HaltReason = "credit_limit"
	HaltManual      HaltReason = "manual"
	HaltError       HaltReason = "error"
)

// validTransitions encodes the run state machine:
// CREATED -> RUNNING -> {PAUSED <-> RUNNING} -> {COMPLETED | HALTED | FAILED}.
var validTransitions = map[Status][]Status{
	StatusCreated: {StatusRunning, StatusFailed},
	StatusRunning: {StatusPaused, StatusCompleted, StatusHalted, StatusFailed},
	StatusPaused:  {StatusRunning, StatusHalted, StatusFailed},
	StatusHalted:  {StatusRunning},
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the run can never execute again.
// Halted runs are not terminal: they accept an explicit resume.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Resumable reports whether a persisted snapshot with this status may be
// resumed. Completed and failed runs are rejected.
func (s Status) Resumable() bool {
	return !s.Terminal()
}

// PhaseName identifies one stage of turn processing.
type PhaseName string

const (
	PhaseCommunication PhaseName = "communication"
	PhaseDecision      PhaseName = "decision"
	PhaseWorldUpdate   PhaseName = "world_update"
	PhaseValidation    PhaseName = "validation"
	PhasePersistence   PhaseName = "persistence"
)

// PhaseOrder is the fixed execution order of phases within a turn.
var PhaseOrder = []PhaseName{
	PhaseCommunication,
	PhaseDecision,
	PhaseWorldUpdate,
	PhaseValidation,
	PhasePersistence,
}
