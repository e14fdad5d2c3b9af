package sessionpool

import (
	"errors"
	"time"
)

// Sentinel errors for pool operations.
var (
	// ErrPoolExhausted indicates the pool is at its non-terminal session cap.
	ErrPoolExhausted = errors.New("session pool exhausted")

	// ErrTimeout indicates an agent round trip exceeded its deadline. The
	// session is left BUSY for the health loop to reclaim.
	ErrTimeout = errors.New("session send timed out")

	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState indicates an operation not legal in the session's
	// current state.
	ErrInvalidState = errors.New("invalid session state for operation")

	// ErrCorruptRecord indicates a persisted session record could not be
	// decoded on reload.
	ErrCorruptRecord = errors.New("corrupt session record")
)

// State is a session's position in its lifecycle.
type State string

const (
	// StateStarting means the session is being brought up.
	StateStarting State = "starting"

	// StateReady means the session is idle and can accept a prompt.
	StateReady State = "ready"

	// StateBusy means a prompt round trip is in flight.
	StateBusy State = "busy"

	// StateWaitingInput means the session is blocked on an approval.
	StateWaitingInput State = "waiting_input"

	// StateFailed is terminal; the session died or was reclaimed.
	StateFailed State = "failed"

	// StateStopped is terminal; the session was shut down deliberately.
	StateStopped State = "stopped"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the session can never leave this state.
func (s State) IsTerminal() bool {
	return s == StateFailed || s == StateStopped
}

// canTransition is the session state machine.
func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed || to == StateStopped {
		return true
	}
	switch from {
	case StateStarting:
		return to == StateReady
	case StateReady:
		return to == StateBusy || to == StateWaitingInput
	case StateBusy:
		return to == StateReady
	case StateWaitingInput:
		return to == StateReady
	}
	return false
}

// Record is the persisted form of a session, durably written on every state
// change so a crashed pool can be reconciled after restart.
type Record struct {
	ID          string    `json:"id"`
	ProjectPath string    `json:"project_path"`
	State       State     `json:"state"`
	Output      []string  `json:"output,omitempty"` // most recent lines
	FailureInfo string    `json:"failure_info,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
