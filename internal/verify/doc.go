// Package verify aggregates named external checks into a single pass/fail
// verification decision.
//
// The gate is deliberately thin: each check is delegated to a Runner
// collaborator, overall success is the logical AND over every requested
// check, and the gate never retries. Retry-on-failure belongs to the
// supervision layer, which treats a failed verification as a task failure.
package verify
