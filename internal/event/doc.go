// Package event provides a pub-sub event bus for decoupled inter-component
// communication in Overseer.
//
// The engine's components (resource pool, session pool, delegator, supervisor)
// publish events as their state machines advance; observers such as the CLI,
// log aggregation, or an external notification hook subscribe without the
// publishing component knowing who is listening.
//
// # Main Types
//
//   - [Event]: Interface all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Resource locks:
//   - [LockAcquiredEvent]: a task acquired its full resource set
//   - [LockReleasedEvent]: a task's locks were released
//
// Sessions:
//   - [SessionStateEvent]: a session record transitioned state
//
// Plans:
//   - [PlanVersionEvent]: a new plan version was appended
//
// Supervision:
//   - [CheckpointSavedEvent]: a task checkpoint was persisted
//   - [TaskEscalatedEvent]: retries exhausted, human action required
//   - [PermissionRoutedEvent]: a permission request was auto-approved,
//     auto-denied, or escalated
//
// # Thread Safety
//
// The [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine and are protected against panics: a panicking handler
// cannot prevent delivery to the remaining handlers.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe("task.escalated", func(e event.Event) {
//	    esc := e.(event.TaskEscalatedEvent)
//	    log.Printf("task %s escalated after %d retries", esc.TaskID, esc.RetryCount)
//	})
//	bus.Publish(event.NewTaskEscalatedEvent("task-1", 5, "tests keep failing"))
//
// Event types follow the "category.action" convention: lock.acquired,
// lock.released, session.state_changed, plan.version_appended,
// checkpoint.saved, task.escalated, permission.routed.
package event
