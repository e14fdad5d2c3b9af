package delegator

import (
	"errors"
	"time"

	"github.com/Iron-Ham/overseer/internal/taskctx"
)

// Sentinel errors for delegation state.
var (
	// ErrTaskNotFound indicates an unknown delegated-task ID.
	ErrTaskNotFound = errors.New("delegated task not found")

	// ErrInvalidTransition indicates an illegal delegation status change.
	ErrInvalidTransition = errors.New("invalid delegation status transition")

	// ErrAlreadyDelegated indicates the plan task already has an active
	// delegation.
	ErrAlreadyDelegated = errors.New("task already delegated")
)

// Status tracks a delegated task through its run-time lifecycle.
type Status string

const (
	// StatusDelegated means locks are held and context is built, but no
	// session has picked the task up yet.
	StatusDelegated Status = "delegated"

	// StatusInProgress means a session is working the task.
	StatusInProgress Status = "in_progress"

	// StatusCompleted is terminal; the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed is terminal; the task failed or was cancelled.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the delegation is finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusDelegated:
		return to == StatusInProgress || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Task is the run-time record of one delegated plan task. Locks named in
// Resources are held from delegation until the task reaches a terminal
// status.
type Task struct {
	ID          string           `json:"id"`
	PlanID      string           `json:"plan_id"`
	PlanVersion int              `json:"plan_version"`
	PhaseIndex  int              `json:"phase_index"`
	TaskIndex   int              `json:"task_index"`
	Description string           `json:"description"`
	Resources   []string         `json:"resources,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
	Status      Status           `json:"status"`
	Context     *taskctx.Context `json:"-"`
	Result      string           `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	DelegatedAt time.Time        `json:"delegated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
