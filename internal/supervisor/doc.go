// Package supervisor watches delegated tasks while agent sessions work
// them.
//
// Each supervised task gets a monitoring loop that polls session health,
// saves periodic checkpoints, and reacts to failures. Permission requests
// from the session are routed by a pluggable keyword classifier: read-only
// and verification actions are approved, destructive and network actions
// are denied, and everything else escalates to a human. A failed task is
// re-delegated with its last checkpoint folded into the new context, up to
// the retry limit; exhausting retries escalates the task through the
// on-escalate callback with everything a human needs to resume from exact
// state.
package supervisor
