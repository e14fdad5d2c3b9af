package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan"
	"github.com/Iron-Ham/overseer/internal/plan/store"
)

// Sentinel errors for the planning state machine.
var (
	// ErrSessionNotFound indicates an unknown planning session ID.
	ErrSessionNotFound = errors.New("planning session not found")

	// ErrQuestionNotFound indicates an unknown or already-answered question.
	ErrQuestionNotFound = errors.New("question not found or already answered")

	// ErrNotReady indicates approval was requested before the draft plan
	// reached review.
	ErrNotReady = errors.New("plan not ready for approval")

	// ErrAlreadyApproved indicates the session has already produced a plan.
	ErrAlreadyApproved = errors.New("planning session already approved")
)

// Staged question sets, asked in category order as earlier stages complete.
var (
	requirementQuestions = []string{
		"What is the primary goal of this task?",
		"What are the success criteria?",
		"Are there any constraints or limitations?",
		"Who are the stakeholders?",
	}

	scopeQuestions = []string{
		"What is explicitly out of scope?",
		"Which parts of the codebase must not change?",
	}

	architectureQuestions = []string{
		"What existing code/systems does this interact with?",
		"What is the preferred technology stack?",
		"Are there any performance requirements?",
		"What are the security considerations?",
		"How should errors be handled?",
	}

	verificationQuestions = []string{
		"How will we verify this works correctly?",
		"What tests are needed?",
		"What manual verification is required?",
		"What are the acceptance criteria?",
	}
)

// Engine owns planning sessions and drives each one from goal to approved
// plan. All methods are safe for concurrent use.
type Engine struct {
	store    *store.Store
	log      *logging.Logger
	classify AnswerClassifier

	mu       sync.Mutex
	sessions map[string]*session
	drafts   map[string]*plan.Plan // session ID -> draft awaiting approval
	approved map[string]string     // session ID -> stored plan ID
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the vague-answer policy.
func WithClassifier(c AnswerClassifier) Option {
	return func(e *Engine) {
		e.classify = c
	}
}

// NewEngine creates a planning engine backed by the given plan store.
func NewEngine(planStore *store.Store, log *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    planStore,
		log:      log.WithComponent("planner"),
		classify: DefaultClassifier,
		sessions: make(map[string]*session),
		drafts:   make(map[string]*plan.Plan),
		approved: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a new planning session seeded with requirements and scope
// questions.
func (e *Engine) Start(project, goal string) (SessionView, error) {
	if project == "" || goal == "" {
		return SessionView{}, errors.New("project and goal are required")
	}

	now := time.Now()
	s := &session{
		id:        fmt.Sprintf("plan-%s-%s", project, now.Format("20060102-150405.000")),
		project:   project,
		goal:      goal,
		phase:     PhaseGatheringRequirements,
		createdAt: now,
		updatedAt: now,
	}
	for _, q := range requirementQuestions {
		s.addQuestion(CategoryRequirements, q)
	}
	for _, q := range scopeQuestions {
		s.addQuestion(CategoryScope, q)
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.log.Info("planning session started", "session_id", s.id, "project", project)
	return s.view(false), nil
}

// Answer records an answer to a pending question. A vague answer is recorded
// but adds a follow-up question in the same category, so the session cannot
// advance on it. When the current stage's questions are all usably answered,
// the session moves to the next stage; finishing the last stage generates
// the draft plan and moves the session to review.
func (e *Engine) Answer(sessionID, questionID, text string) (SessionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return SessionView{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if s.phase == PhaseApproved {
		return SessionView{}, fmt.Errorf("%w: %s", ErrAlreadyApproved, sessionID)
	}

	var question *Question
	for _, q := range s.questions {
		if q.ID == questionID && !q.Answered {
			question = q
			break
		}
	}
	if question == nil {
		return SessionView{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, questionID)
	}

	question.Answer = text
	question.Answered = true
	s.updatedAt = time.Now()

	if e.classify(text) {
		question.NeedsFollowup = true
		followup := s.addQuestion(question.Category,
			fmt.Sprintf("Your answer to %q was unclear. Can you be more specific? (%s)", question.Text, question.Category))
		e.log.Debug("vague answer, follow-up added",
			"session_id", sessionID, "question_id", questionID, "followup_id", followup.ID)
	}

	e.advance(s)
	return s.view(e.drafts[sessionID] != nil), nil
}

// advance moves the session forward through its stages while no questions
// are pending. Caller holds e.mu.
func (e *Engine) advance(s *session) {
	if len(s.pending()) > 0 {
		return
	}

	switch s.phase {
	case PhaseGatheringRequirements:
		s.phase = PhaseResearching
		for _, q := range architectureQuestions {
			s.addQuestion(CategoryArchitecture, q)
		}
		e.log.Info("planning advanced", "session_id", s.id, "phase", s.phase)
	case PhaseResearching:
		s.phase = PhaseDesigning
		for _, q := range verificationQuestions {
			s.addQuestion(CategoryVerification, q)
		}
		e.log.Info("planning advanced", "session_id", s.id, "phase", s.phase)
	case PhaseDesigning:
		s.phase = PhaseReviewing
		e.drafts[s.id] = e.draftPlan(s)
		e.log.Info("draft plan generated", "session_id", s.id,
			"phases", len(e.drafts[s.id].Phases))
	}
}

// Get returns a snapshot of a session.
func (e *Engine) Get(sessionID string) (SessionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return SessionView{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.view(e.drafts[sessionID] != nil), nil
}

// Draft returns the draft plan once the session reaches review.
func (e *Engine) Draft(sessionID string) (*plan.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	draft, ok := e.drafts[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: no draft plan yet", ErrNotReady)
	}
	return draft.Clone(), nil
}

// Approve stores the draft plan as version 1 and marks the session approved.
// Approval is terminal; answering or re-approving afterwards fails.
func (e *Engine) Approve(ctx context.Context, sessionID string) (*plan.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if s.phase == PhaseApproved {
		return nil, fmt.Errorf("%w: plan %s", ErrAlreadyApproved, e.approved[sessionID])
	}
	if s.phase != PhaseReviewing {
		return nil, fmt.Errorf("%w: session in phase %s", ErrNotReady, s.phase)
	}

	draft := e.drafts[sessionID]
	if _, err := e.store.Create(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to store approved plan: %w", err)
	}

	s.phase = PhaseApproved
	s.updatedAt = time.Now()
	e.approved[sessionID] = draft.ID
	delete(e.drafts, sessionID)

	e.log.Info("plan approved", "session_id", sessionID, "plan_id", draft.ID)
	return draft.Clone(), nil
}

// Abandon discards a session that has not been approved.
func (e *Engine) Abandon(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if s.phase == PhaseApproved {
		return fmt.Errorf("%w: %s", ErrAlreadyApproved, sessionID)
	}
	delete(e.sessions, sessionID)
	delete(e.drafts, sessionID)
	e.log.Info("planning session abandoned", "session_id", sessionID)
	return nil
}

// List returns snapshots of every live session.
func (e *Engine) List() []SessionView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]SessionView, 0, len(e.sessions))
	for id, s := range e.sessions {
		out = append(out, s.view(e.drafts[id] != nil))
	}
	return out
}

// draftPlan derives a plan deterministically from the session's answers.
// Requirements answers feed the overview, scope answers become constraints,
// architecture answers become decisions, and verification answers become the
// verification steps of the final phase.
func (e *Engine) draftPlan(s *session) *plan.Plan {
	overview := plan.Overview{Goal: s.goal}
	for _, a := range s.answersIn(CategoryRequirements) {
		lower := strings.ToLower(a.Question)
		switch {
		case strings.Contains(lower, "success"):
			overview.SuccessCriteria = append(overview.SuccessCriteria, a.Answer)
		case strings.Contains(lower, "constraint"):
			overview.Constraints = append(overview.Constraints, a.Answer)
		}
	}
	for _, a := range s.answersIn(CategoryScope) {
		overview.Constraints = append(overview.Constraints, "out of scope: "+a.Answer)
	}

	var decisions []plan.Decision
	for _, a := range s.answersIn(CategoryArchitecture) {
		decisions = append(decisions, plan.Decision{
			Statement: a.Answer,
			Rationale: a.Question,
		})
	}

	var verification []string
	for _, a := range s.answersIn(CategoryVerification) {
		verification = append(verification, a.Answer)
	}

	phases := []plan.Phase{
		{Name: "Setup & Research", Tasks: []plan.Task{
			{Description: "Review existing codebase", Status: plan.TaskPending},
			{Description: "Identify files to modify", Status: plan.TaskPending},
		}},
		{Name: "Implementation", Tasks: []plan.Task{
			{Description: "Implement core logic", Status: plan.TaskPending},
			{Description: "Add error handling", Status: plan.TaskPending},
			{Description: "Write unit tests", Status: plan.TaskPending},
		}},
		{Name: "Verification & Cleanup", Tasks: []plan.Task{
			{Description: "Run full test suite", Verification: verification, Status: plan.TaskPending},
			{Description: "Run linter and type checker", Status: plan.TaskPending},
			{Description: "Update documentation", Status: plan.TaskPending},
		}},
	}

	return plan.New(s.project, overview, phases, decisions)
}
