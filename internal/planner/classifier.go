package planner

import "strings"

// AnswerClassifier decides whether an answer is too vague to plan on.
// It is a pure function so policies can be swapped and tested in isolation
// from the session state machine.
type AnswerClassifier func(answer string) bool

// vagueMarkers flag answers that defer the decision back to the planner.
var vagueMarkers = []string{
	"not sure",
	"maybe",
	"i don't know",
	"dont know",
	"whatever",
	"no idea",
}

// NewKeywordClassifier builds a classifier over a custom marker list.
// Empty answers are always vague.
func NewKeywordClassifier(markers []string) AnswerClassifier {
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return func(answer string) bool {
		trimmed := strings.TrimSpace(strings.ToLower(answer))
		if trimmed == "" {
			return true
		}
		for _, marker := range lowered {
			if strings.Contains(trimmed, marker) {
				return true
			}
		}
		return false
	}
}

// DefaultClassifier marks empty answers and answers containing a vague
// marker phrase as needing a follow-up.
var DefaultClassifier = NewKeywordClassifier(vagueMarkers)
