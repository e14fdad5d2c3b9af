package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "lock.acquired", "task.escalated")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Resource Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted when a task acquires its full resource set.
type LockAcquiredEvent struct {
	baseEvent
	TaskID    string   // Task holding the locks
	Resources []string // File paths locked
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(taskID string, resources []string) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent: newBaseEvent("lock.acquired"),
		TaskID:    taskID,
		Resources: resources,
	}
}

// LockReleasedEvent is emitted when a task's locks are released.
type LockReleasedEvent struct {
	baseEvent
	TaskID    string   // Task that held the locks
	Resources []string // File paths released
	Forced    bool     // True when an operator force-released
}

// NewLockReleasedEvent creates a LockReleasedEvent.
func NewLockReleasedEvent(taskID string, resources []string, forced bool) LockReleasedEvent {
	return LockReleasedEvent{
		baseEvent: newBaseEvent("lock.released"),
		TaskID:    taskID,
		Resources: resources,
		Forced:    forced,
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionStateEvent is emitted when a session record transitions state.
type SessionStateEvent struct {
	baseEvent
	SessionID string // Session that transitioned
	From      string // Previous state
	To        string // New state
	Reason    string // Why the transition happened (may be empty)
}

// NewSessionStateEvent creates a SessionStateEvent.
func NewSessionStateEvent(sessionID, from, to, reason string) SessionStateEvent {
	return SessionStateEvent{
		baseEvent: newBaseEvent("session.state_changed"),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Plan Events
// -----------------------------------------------------------------------------

// PlanVersionEvent is emitted when a new plan version is appended.
type PlanVersionEvent struct {
	baseEvent
	PlanID  string // Plan identifier
	Version int    // New version number
	Summary string // Human-readable mutation summary
}

// NewPlanVersionEvent creates a PlanVersionEvent.
func NewPlanVersionEvent(planID string, version int, summary string) PlanVersionEvent {
	return PlanVersionEvent{
		baseEvent: newBaseEvent("plan.version_appended"),
		PlanID:    planID,
		Version:   version,
		Summary:   summary,
	}
}

// -----------------------------------------------------------------------------
// Supervision Events
// -----------------------------------------------------------------------------

// CheckpointSavedEvent is emitted when a task checkpoint is persisted.
type CheckpointSavedEvent struct {
	baseEvent
	TaskID        string   // Task that was checkpointed
	FilesModified []string // Files modified since the previous checkpoint
}

// NewCheckpointSavedEvent creates a CheckpointSavedEvent.
func NewCheckpointSavedEvent(taskID string, filesModified []string) CheckpointSavedEvent {
	return CheckpointSavedEvent{
		baseEvent:     newBaseEvent("checkpoint.saved"),
		TaskID:        taskID,
		FilesModified: filesModified,
	}
}

// TaskEscalatedEvent is emitted when a task exhausts its retries and is
// handed off to a human.
type TaskEscalatedEvent struct {
	baseEvent
	TaskID     string // Task that escalated
	RetryCount int    // Attempts made before escalation
	Detail     string // Last error detail
}

// NewTaskEscalatedEvent creates a TaskEscalatedEvent.
func NewTaskEscalatedEvent(taskID string, retryCount int, detail string) TaskEscalatedEvent {
	return TaskEscalatedEvent{
		baseEvent:  newBaseEvent("task.escalated"),
		TaskID:     taskID,
		RetryCount: retryCount,
		Detail:     detail,
	}
}

// PermissionRoutedEvent is emitted when a permission request is routed.
type PermissionRoutedEvent struct {
	baseEvent
	TaskID   string // Task the request belongs to
	Action   string // Requested action text
	Decision string // "approve", "deny", or "escalate"
}

// NewPermissionRoutedEvent creates a PermissionRoutedEvent.
func NewPermissionRoutedEvent(taskID, action, decision string) PermissionRoutedEvent {
	return PermissionRoutedEvent{
		baseEvent: newBaseEvent("permission.routed"),
		TaskID:    taskID,
		Action:    action,
		Decision:  decision,
	}
}
