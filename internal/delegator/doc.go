// Package delegator turns plan tasks into delegated units of work.
//
// Delegating a task acquires every resource lock the task needs as one
// atomic set, assembles its context bundle, and records a DelegatedTask in
// DELEGATED status. A lock conflict returns without creating anything, so
// the plan task stays pending. Terminal transitions (completed, failed,
// cancelled) release the task's locks, update the plan task status through
// the plan store, and move the record to the archive. Completed work feeds
// the per-phase history that later tasks see in their context.
package delegator
