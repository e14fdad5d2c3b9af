package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan"
	"github.com/Iron-Ham/overseer/internal/plan/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return NewEngine(s, logging.NopLogger()), s
}

// answerAll answers every currently pending question with the given text and
// returns the last view.
func answerAll(t *testing.T, e *Engine, sessionID, text string) SessionView {
	t.Helper()
	view, err := e.Get(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	for len(view.PendingQuestions) > 0 {
		pending := view.PendingQuestions
		samplePhase := view.Phase
		for _, q := range pending {
			view, err = e.Answer(sessionID, q.ID, text)
			if err != nil {
				t.Fatalf("Answer(%s) failed: %v", q.ID, err)
			}
		}
		// Stop once a full pass over a stage didn't advance anything, which
		// only happens when every answer spawned a follow-up.
		if view.Phase == samplePhase && len(view.PendingQuestions) >= len(pending) {
			return view
		}
	}
	return view
}

func TestStartSeedsRequirementAndScopeQuestions(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "add motion detection")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if view.Phase != PhaseGatheringRequirements {
		t.Errorf("phase = %s, want gathering_requirements", view.Phase)
	}

	categories := make(map[string]int)
	for _, q := range view.PendingQuestions {
		categories[q.Category]++
	}
	if categories[CategoryRequirements] == 0 {
		t.Error("no requirements questions seeded")
	}
	if categories[CategoryScope] == 0 {
		t.Error("no scope questions seeded")
	}
	if categories[CategoryArchitecture] != 0 {
		t.Error("architecture questions seeded before requirements stage done")
	}
}

func TestStartRejectsEmptyArgs(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Start("", "goal"); err == nil {
		t.Error("Start with empty project succeeded")
	}
	if _, err := e.Start("demo", ""); err == nil {
		t.Error("Start with empty goal succeeded")
	}
}

func TestPhaseProgressionThroughStages(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "add motion detection")
	if err != nil {
		t.Fatal(err)
	}

	// Answer requirements+scope; session moves to researching with
	// architecture questions pending.
	for _, q := range view.PendingQuestions {
		view, err = e.Answer(view.ID, q.ID, "a concrete answer")
		if err != nil {
			t.Fatal(err)
		}
	}
	if view.Phase != PhaseResearching {
		t.Fatalf("phase after requirements = %s, want researching", view.Phase)
	}

	for _, q := range view.PendingQuestions {
		view, err = e.Answer(view.ID, q.ID, "a concrete answer")
		if err != nil {
			t.Fatal(err)
		}
	}
	if view.Phase != PhaseDesigning {
		t.Fatalf("phase after architecture = %s, want designing", view.Phase)
	}

	for _, q := range view.PendingQuestions {
		view, err = e.Answer(view.ID, q.ID, "run pytest")
		if err != nil {
			t.Fatal(err)
		}
	}
	if view.Phase != PhaseReviewing {
		t.Fatalf("phase after verification = %s, want reviewing", view.Phase)
	}
	if !view.HasDraftPlan {
		t.Error("no draft plan at review")
	}
}

func TestVagueAnswerAddsFollowupAndBlocksAdvance(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "goal")
	if err != nil {
		t.Fatal(err)
	}
	total := view.QuestionsTotal

	first := view.PendingQuestions[0]
	view, err = e.Answer(view.ID, first.ID, "not sure, maybe later")
	if err != nil {
		t.Fatal(err)
	}

	if view.QuestionsTotal != total+1 {
		t.Errorf("questions total = %d, want %d (follow-up appended)", view.QuestionsTotal, total+1)
	}
	if view.Phase != PhaseGatheringRequirements {
		t.Errorf("phase advanced on vague answer: %s", view.Phase)
	}

	followup := view.PendingQuestions[len(view.PendingQuestions)-1]
	if followup.Category != first.Category {
		t.Errorf("follow-up category = %s, want %s", followup.Category, first.Category)
	}
}

func TestAnswerUnknownQuestion(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "goal")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Answer(view.ID, "q999", "text"); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound, got %v", err)
	}

	// Answering the same question twice fails the second time.
	q := view.PendingQuestions[0]
	if _, err := e.Answer(view.ID, q.ID, "fine"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Answer(view.ID, q.ID, "again"); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound on re-answer, got %v", err)
	}

	if _, err := e.Answer("missing-session", "q1", "text"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestApproveBeforeReviewFails(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "goal")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Approve(context.Background(), view.ID); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestApproveStoresPlanVersionOne(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	view, err := e.Start("demo", "add motion detection")
	if err != nil {
		t.Fatal(err)
	}
	view = answerAll(t, e, view.ID, "a concrete answer")
	if view.Phase != PhaseReviewing {
		t.Fatalf("phase = %s, want reviewing", view.Phase)
	}

	approved, err := e.Approve(ctx, view.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Version != 1 {
		t.Errorf("approved version = %d, want 1", approved.Version)
	}

	stored, err := s.Get(ctx, approved.ID, 0)
	if err != nil {
		t.Fatalf("plan not in store: %v", err)
	}
	if stored.Overview.Goal != "add motion detection" {
		t.Errorf("stored goal = %q", stored.Overview.Goal)
	}

	// Session is terminal.
	got, err := e.Get(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != PhaseApproved {
		t.Errorf("session phase = %s, want approved", got.Phase)
	}
	if _, err := e.Approve(ctx, view.ID); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("expected ErrAlreadyApproved, got %v", err)
	}
	if _, err := e.Answer(view.ID, "q1", "late"); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("expected ErrAlreadyApproved on late answer, got %v", err)
	}
}

func TestDraftDerivedFromAnswers(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "add motion detection")
	if err != nil {
		t.Fatal(err)
	}
	view = answerAll(t, e, view.ID, "use the existing pipeline")

	draft, err := e.Draft(view.ID)
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if draft.Overview.Goal != "add motion detection" {
		t.Errorf("draft goal = %q", draft.Overview.Goal)
	}
	if len(draft.Phases) != 3 {
		t.Errorf("draft has %d phases, want 3", len(draft.Phases))
	}
	if len(draft.Decisions) == 0 {
		t.Error("architecture answers did not become decisions")
	}
	for _, ph := range draft.Phases {
		for _, task := range ph.Tasks {
			if task.Status != plan.TaskPending {
				t.Errorf("draft task %q status = %s, want pending", task.Description, task.Status)
			}
		}
	}
}

func TestCustomClassifier(t *testing.T) {
	s, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Everything is vague under this policy.
	e := NewEngine(s, logging.NopLogger(), WithClassifier(func(string) bool { return true }))

	view, err := e.Start("demo", "goal")
	if err != nil {
		t.Fatal(err)
	}
	total := view.QuestionsTotal
	view, err = e.Answer(view.ID, view.PendingQuestions[0].ID, "a perfectly clear answer")
	if err != nil {
		t.Fatal(err)
	}
	if view.QuestionsTotal != total+1 {
		t.Error("custom classifier not consulted")
	}
}

func TestAbandon(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start("demo", "goal")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Abandon(view.ID); err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if _, err := e.Get(view.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after abandon, got %v", err)
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		answer string
		vague  bool
	}{
		{"use sqlite with a single table", false},
		{"not sure", true},
		{"Maybe the left one", true},
		{"I don't know yet", true},
		{"whatever works", true},
		{"", true},
		{"   ", true},
		{"no idea honestly", true},
		{"42 requests per second", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			if got := DefaultClassifier(tt.answer); got != tt.vague {
				t.Errorf("DefaultClassifier(%q) = %v, want %v", tt.answer, got, tt.vague)
			}
		})
	}
}
