// Package taskctx assembles the token-budgeted context bundle handed to an
// agent session for one task.
//
// The bundle is an ordered list of labeled text blocks: the task description
// and plan constraints first, then plan decisions relevant to the task, a
// summary of prior completed work in the same phase, and documentation
// excerpts from an optional search collaborator. Token cost is estimated
// from text length. When the bundle exceeds its budget, whole blocks are
// trimmed lowest-priority-class first, oldest block first within a class,
// until it fits. The task description and constraints are never trimmed;
// assembly never fails, even when those two alone bust the budget.
package taskctx
