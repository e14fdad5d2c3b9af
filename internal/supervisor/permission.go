package supervisor

import "strings"

// Decision is the outcome of routing one permission request.
type Decision string

const (
	// DecisionApprove lets the action proceed without human involvement.
	DecisionApprove Decision = "approve"

	// DecisionDeny blocks the action without human involvement.
	DecisionDeny Decision = "deny"

	// DecisionEscalate parks the session until a human answers.
	DecisionEscalate Decision = "escalate"
)

// PermissionClassifier maps a requested action to a routing decision. It is
// a pure function so the policy can be swapped and tested in isolation.
type PermissionClassifier func(action string) Decision

// Keyword sets for the default policy. Approvals cover read-only and
// verification work; denials cover destructive and network operations.
var (
	approveKeywords = []string{
		"read", "search", "list", "grep", "glob", "test", "lint", "type-check", "type check",
	}
	denyKeywords = []string{
		"delete", "remove", "drop", "curl", "wget", "fetch", "install",
	}
)

// DefaultPermissionClassifier routes by keyword match, deny keywords
// checked first so "delete test fixtures" is denied, not approved.
func DefaultPermissionClassifier(action string) Decision {
	lower := strings.ToLower(action)
	for _, kw := range denyKeywords {
		if strings.Contains(lower, kw) {
			return DecisionDeny
		}
	}
	for _, kw := range approveKeywords {
		if strings.Contains(lower, kw) {
			return DecisionApprove
		}
	}
	return DecisionEscalate
}
