package planner

import (
	"fmt"
	"time"
)

// Phase is the stage a planning session has reached. Phases never regress.
type Phase string

const (
	// PhaseGatheringRequirements is collecting requirements and scope answers.
	PhaseGatheringRequirements Phase = "gathering_requirements"

	// PhaseResearching is collecting architecture answers.
	PhaseResearching Phase = "researching"

	// PhaseDesigning is collecting verification answers.
	PhaseDesigning Phase = "designing"

	// PhaseReviewing means a draft plan exists and awaits approval.
	PhaseReviewing Phase = "reviewing"

	// PhaseApproved is terminal; the plan has been stored.
	PhaseApproved Phase = "approved"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Question categories.
const (
	CategoryRequirements = "requirements"
	CategoryArchitecture = "architecture"
	CategoryVerification = "verification"
	CategoryScope        = "scope"
)

// Question is one item in a session's Q&A sequence.
type Question struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Text          string `json:"text"`
	Answer        string `json:"answer,omitempty"`
	Answered      bool   `json:"answered"`
	NeedsFollowup bool   `json:"needs_followup"`
}

// session is the engine's internal mutable state for one planning session.
// Only the Engine touches it, under the Engine's lock.
type session struct {
	id        string
	project   string
	goal      string
	phase     Phase
	questions []*Question
	createdAt time.Time
	updatedAt time.Time
}

func (s *session) addQuestion(category, text string) *Question {
	q := &Question{
		ID:       fmt.Sprintf("q%d", len(s.questions)+1),
		Category: category,
		Text:     text,
	}
	s.questions = append(s.questions, q)
	return q
}

func (s *session) pending() []*Question {
	var out []*Question
	for _, q := range s.questions {
		if !q.Answered {
			out = append(out, q)
		}
	}
	return out
}

// answersIn returns the recorded answers for a category, in question order.
func (s *session) answersIn(category string) []answered {
	var out []answered
	for _, q := range s.questions {
		if q.Category == category && q.Answered {
			out = append(out, answered{Question: q.Text, Answer: q.Answer})
		}
	}
	return out
}

type answered struct {
	Question string
	Answer   string
}

// SessionView is an immutable snapshot of a session handed to callers.
type SessionView struct {
	ID               string     `json:"id"`
	Project          string     `json:"project"`
	Goal             string     `json:"goal"`
	Phase            Phase      `json:"phase"`
	PendingQuestions []Question `json:"pending_questions"`
	QuestionsTotal   int        `json:"questions_total"`
	AnsweredTotal    int        `json:"questions_answered"`
	HasDraftPlan     bool       `json:"has_draft_plan"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (s *session) view(hasDraft bool) SessionView {
	v := SessionView{
		ID:             s.id,
		Project:        s.project,
		Goal:           s.goal,
		Phase:          s.phase,
		QuestionsTotal: len(s.questions),
		HasDraftPlan:   hasDraft,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
	for _, q := range s.questions {
		if q.Answered {
			v.AnsweredTotal++
		} else {
			v.PendingQuestions = append(v.PendingQuestions, *q)
		}
	}
	return v
}
