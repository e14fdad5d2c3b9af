package taskctx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan"
)

func testTask() *plan.Task {
	return &plan.Task{
		Description:  "implement motion detection pipeline",
		Files:        []string{"src/detector.py"},
		Verification: []string{"pytest tests/test_detector.py"},
		Status:       plan.TaskPending,
	}
}

func testParentPlan() *plan.Plan {
	return plan.New("cam", plan.Overview{
		Goal:        "camera monitoring",
		Constraints: []string{"no new dependencies", "python 3.11 only"},
	}, []plan.Phase{
		{Name: "phase-1", Tasks: []plan.Task{*testTask()}},
	}, []plan.Decision{
		{Statement: "motion detection uses frame differencing", Rationale: "no GPU available"},
		{Statement: "billing happens in stripe", Rationale: "unrelated"},
	})
}

type stubSearcher struct {
	docs []Doc
	err  error
}

func (s stubSearcher) Search(ctx context.Context, query string) ([]Doc, error) {
	return s.docs, s.err
}

func TestBuildIncludesBlocksInPriorityOrder(t *testing.T) {
	a := NewAssembler(150_000, 5, 10, logging.NopLogger())

	history := []HistoryItem{{TaskDescription: "set up repo", Outcome: "ok"}}
	search := stubSearcher{docs: []Doc{
		{Title: "motion detection guide", Content: "frame differencing basics"},
	}}

	c := a.Build(context.Background(), testTask(), testParentPlan(), history, search)

	if len(c.Blocks) < 4 {
		t.Fatalf("got %d blocks, want at least 4: %+v", len(c.Blocks), c.Blocks)
	}
	if c.Blocks[0].Label != "Task" || c.Blocks[0].Priority != PriorityCritical {
		t.Errorf("first block = %q (%d), want critical Task", c.Blocks[0].Label, c.Blocks[0].Priority)
	}
	if c.Blocks[1].Label != "Constraints" {
		t.Errorf("second block = %q, want Constraints", c.Blocks[1].Label)
	}
	if c.PlanRef == "" || !strings.HasPrefix(c.PlanRef, "cam:") {
		t.Errorf("plan ref = %q", c.PlanRef)
	}
}

func TestDecisionFiltering(t *testing.T) {
	a := NewAssembler(150_000, 5, 10, logging.NopLogger())

	c := a.Build(context.Background(), testTask(), testParentPlan(), nil, nil)

	var decisions []string
	for _, b := range c.Blocks {
		if b.Priority == PriorityDecisions {
			decisions = append(decisions, b.Content)
		}
	}
	if len(decisions) != 1 {
		t.Fatalf("got %d decision blocks, want 1: %v", len(decisions), decisions)
	}
	if !strings.Contains(decisions[0], "frame differencing") {
		t.Errorf("kept the wrong decision: %q", decisions[0])
	}
}

func TestBudgetTrimsDocsBeforeHistory(t *testing.T) {
	// Budget big enough for task+constraints+decision+history but not docs.
	a := NewAssembler(300, 5, 10, logging.NopLogger())

	history := []HistoryItem{{TaskDescription: "set up repo"}}
	search := stubSearcher{docs: []Doc{
		{Title: "motion detection guide", Content: strings.Repeat("motion pipeline details. ", 50)},
	}}

	c := a.Build(context.Background(), testTask(), testParentPlan(), history, search)

	if c.EstimatedTokens > 300 {
		t.Errorf("estimated tokens %d exceed budget 300", c.EstimatedTokens)
	}
	for _, b := range c.Blocks {
		if b.Priority == PriorityDocs {
			t.Errorf("doc block survived trimming: %q", b.Label)
		}
	}
	hasHistory := false
	for _, b := range c.Blocks {
		if b.Priority == PriorityHistory {
			hasHistory = true
		}
	}
	if !hasHistory {
		t.Error("history trimmed while docs should go first")
	}
	if c.Trimmed == 0 {
		t.Error("no blocks recorded as trimmed")
	}
}

func TestCriticalBlocksNeverTrimmed(t *testing.T) {
	// Budget smaller than the task description alone.
	a := NewAssembler(5, 5, 10, logging.NopLogger())

	c := a.Build(context.Background(), testTask(), testParentPlan(), nil, nil)

	var labels []string
	for _, b := range c.Blocks {
		labels = append(labels, b.Label)
	}
	if len(c.Blocks) != 2 || c.Blocks[0].Label != "Task" || c.Blocks[1].Label != "Constraints" {
		t.Errorf("critical blocks wrong after heavy trim: %v", labels)
	}
	// Build never fails; the bundle may exceed an impossible budget.
	if c.EstimatedTokens == 0 {
		t.Error("estimated tokens zero for non-empty bundle")
	}
}

func TestSearchErrorNonFatal(t *testing.T) {
	a := NewAssembler(150_000, 5, 10, logging.NopLogger())

	c := a.Build(context.Background(), testTask(), testParentPlan(), nil,
		stubSearcher{err: errors.New("index offline")})

	if len(c.Blocks) == 0 {
		t.Fatal("build failed on search error")
	}
	for _, b := range c.Blocks {
		if b.Priority == PriorityDocs {
			t.Error("doc block present despite search error")
		}
	}
}

func TestHistorySummaryKeepsMostRecent(t *testing.T) {
	history := make([]HistoryItem, 15)
	for i := range history {
		history[i] = HistoryItem{TaskDescription: strings.Repeat("x", i+1)}
	}

	summary := summarizeHistory(history, 10)
	lines := strings.Split(summary, "\n")
	if len(lines) != 10 {
		t.Fatalf("summary has %d lines, want 10", len(lines))
	}
	// The oldest surviving entry is item 5 (length 6).
	if !strings.Contains(lines[0], strings.Repeat("x", 6)) {
		t.Errorf("wrong entries kept: %q", lines[0])
	}
}

func TestRankDocsCapsAndOrders(t *testing.T) {
	task := testTask()
	docs := []Doc{
		{Title: "unrelated billing", Content: "stripe webhooks"},
		{Title: "motion detection deep dive", Content: "motion pipeline detection notes"},
		{Title: "pipeline tips", Content: "general pipeline advice"},
	}

	ranked := rankDocs(task, docs, 2)
	if len(ranked) != 2 {
		t.Fatalf("got %d docs, want 2", len(ranked))
	}
	if ranked[0].Title != "motion detection deep dive" {
		t.Errorf("best doc = %q", ranked[0].Title)
	}
	for _, d := range ranked {
		if d.Title == "unrelated billing" {
			t.Error("zero-score doc included")
		}
	}
}

func TestPromptRendering(t *testing.T) {
	a := NewAssembler(150_000, 5, 10, logging.NopLogger())

	c := a.Build(context.Background(), testTask(), testParentPlan(), nil, nil)
	prompt := c.Prompt()

	for _, want := range []string{
		"# Task Assignment",
		"## Task",
		"implement motion detection pipeline",
		"## Constraints",
		"no new dependencies",
		"Plan Reference: cam:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

// Budget compliance holds for arbitrary inputs as long as the critical
// blocks alone fit, and the task block always survives.
func TestBudgetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		budget := rapid.IntRange(500, 5000).Draw(t, "budget")
		a := NewAssembler(budget, 5, 10, logging.NopLogger())

		task := &plan.Task{
			Description: rapid.StringMatching(`[a-z ]{10,100}`).Draw(t, "desc"),
			Status:      plan.TaskPending,
		}
		p := plan.New("proj", plan.Overview{Goal: "g"}, []plan.Phase{
			{Name: "p", Tasks: []plan.Task{*task}},
		}, nil)

		n := rapid.IntRange(0, 20).Draw(t, "nhist")
		history := make([]HistoryItem, n)
		for i := range history {
			history[i] = HistoryItem{
				TaskDescription: rapid.StringMatching(`[a-z ]{1,200}`).Draw(t, "hist"),
			}
		}

		c := a.Build(context.Background(), task, p, history, nil)

		if c.Blocks[0].Label != "Task" {
			t.Fatalf("task block missing: %+v", c.Blocks)
		}
		critical := 0
		for _, b := range c.Blocks {
			if b.Priority == PriorityCritical {
				critical += b.Tokens()
			}
		}
		if critical <= budget && c.EstimatedTokens > budget {
			t.Fatalf("bundle %d tokens exceeds budget %d with critical only %d",
				c.EstimatedTokens, budget, critical)
		}
	})
}
