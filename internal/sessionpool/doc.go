// Package sessionpool manages a bounded set of long-lived agent sessions.
//
// Each session wraps one agent-process handle and moves through a small
// state machine: STARTING, then READY, cycling READY to BUSY around each
// prompt round trip, detouring READY to WAITING_INPUT during an approval
// round trip, and ending in FAILED or STOPPED. The pool caps how many
// sessions may be non-terminal at once; starts beyond the cap fail
// immediately with ErrPoolExhausted rather than queueing.
//
// Every state change is persisted to disk, so a restarted pool can reload
// its records. Reloaded sessions that were not terminal when the process
// died are marked FAILED and surfaced for reconciliation instead of being
// silently resumed. A background health loop watches for sessions stuck
// busy past the liveness threshold and fails them so their work can be
// retried elsewhere.
package sessionpool
