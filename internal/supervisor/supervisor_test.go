package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/overseer/internal/agent"
	"github.com/Iron-Ham/overseer/internal/delegator"
	"github.com/Iron-Ham/overseer/internal/event"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan"
	"github.com/Iron-Ham/overseer/internal/plan/store"
	"github.com/Iron-Ham/overseer/internal/respool"
	"github.com/Iron-Ham/overseer/internal/sessionpool"
	"github.com/Iron-Ham/overseer/internal/taskctx"
)

type stubAgent struct{}

func (stubAgent) Send(ctx context.Context, prompt string, profile agent.PermissionProfile) (*agent.Response, error) {
	return &agent.Response{Text: "ok"}, nil
}

// harness wires every collaborator the supervisor needs around a temp dir.
type harness struct {
	sup     *Supervisor
	tasks   *delegator.Delegator
	pool    *sessionpool.Pool
	cps     *CheckpointStore
	bus     *event.Bus
	planID  string
	project string
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()

	s, err := store.New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	locks := respool.NewPool(nil)
	assembler := taskctx.NewAssembler(150_000, 5, 10, logging.NopLogger())
	tasks := delegator.New(locks, s, assembler, logging.NopLogger())

	pool, err := sessionpool.New(dir, sessionpool.Config{
		MaxSessions:       3,
		SendTimeout:       time.Second,
		HealthInterval:    time.Hour,
		LivenessThreshold: time.Hour,
	}, func(projectPath string) agent.Agent { return stubAgent{} }, nil, logging.NopLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	cps, err := NewCheckpointStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	sup := New(tasks, pool, cps, cfg, bus, logging.NopLogger(), opts...)
	t.Cleanup(sup.Close)

	p := plan.New("demo", plan.Overview{Goal: "refactor"}, []plan.Phase{
		{Name: "phase-1", Tasks: []plan.Task{
			{Description: "migrate parser", Files: []string{"src/parser.py"}, Status: plan.TaskPending},
		}},
	}, nil)
	planID, err := s.Create(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	return &harness{sup: sup, tasks: tasks, pool: pool, cps: cps, bus: bus, planID: planID, project: dir}
}

func testConfig() Config {
	return Config{PollInterval: time.Hour, CheckpointInterval: time.Hour, MaxRetries: 5}
}

// delegateAndSupervise runs the normal startup sequence: delegate, start a
// session, mark in progress, begin supervision.
func (h *harness) delegateAndSupervise(t *testing.T) (taskID, sessionID string) {
	t.Helper()
	ctx := context.Background()

	task, err := h.tasks.Delegate(ctx, h.planID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	sessionID, err = h.pool.Start(h.project)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.tasks.MarkInProgress(ctx, task.ID, sessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.sup.Start(task.ID, sessionID); err != nil {
		t.Fatal(err)
	}
	return task.ID, sessionID
}

// current returns the delegation the supervision is tracking right now,
// which diverges from the start task after a retry.
func (h *harness) current(t *testing.T, key string) *delegator.Task {
	t.Helper()
	h.sup.mu.Lock()
	id := h.sup.states[key].taskID
	h.sup.mu.Unlock()
	task, err := h.tasks.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestRetryCarriesLastCheckpoint(t *testing.T) {
	h := newHarness(t, testConfig())
	key, sessionID := h.delegateAndSupervise(t)

	if _, err := h.sup.SaveCheckpoint(key, "parsed module headers"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.sup.SaveCheckpoint(key, "rewrote import resolution"); err != nil {
		t.Fatal(err)
	}

	if err := h.pool.Fail(sessionID, "process crashed"); err != nil {
		t.Fatal(err)
	}
	if done := h.sup.poll(context.Background(), key); done {
		t.Fatal("poll ended supervision, want retry")
	}

	st, err := h.sup.State(key)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusMonitoring {
		t.Errorf("status = %s, want monitoring", st.Status)
	}
	if st.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", st.RetryCount)
	}
	if st.SessionID == sessionID {
		t.Error("retry did not start a fresh session")
	}

	retry := h.current(t, key)
	if retry.ID == key {
		t.Error("retry reused the failed delegation")
	}
	if retry.Status != delegator.StatusInProgress {
		t.Errorf("retry status = %s, want in_progress", retry.Status)
	}
	prompt := retry.Context.Prompt()
	if !strings.Contains(prompt, "rewrote import resolution") {
		t.Errorf("retry context missing last checkpoint summary:\n%s", prompt)
	}
	if !strings.Contains(prompt, "previous attempt") {
		t.Error("retry context does not flag the prior attempt")
	}
}

func TestEscalatesAfterExactlyMaxRetries(t *testing.T) {
	var mu sync.Mutex
	var escalations []Escalation
	cfg := testConfig()
	cfg.MaxRetries = 3

	h := newHarness(t, cfg, WithEscalateFunc(func(e Escalation) {
		mu.Lock()
		escalations = append(escalations, e)
		mu.Unlock()
	}))

	var events int
	h.bus.Subscribe("task.escalated", func(e event.Event) { events++ })

	key, _ := h.delegateAndSupervise(t)
	ctx := context.Background()

	for i := 1; i < cfg.MaxRetries; i++ {
		if err := h.sup.ReportFailure(ctx, key, "verification failed"); err != nil {
			t.Fatal(err)
		}
		st, _ := h.sup.State(key)
		if st.Status != StatusMonitoring {
			t.Fatalf("failure %d escalated early", i)
		}
		if st.RetryCount != i {
			t.Fatalf("failure %d: retry count = %d", i, st.RetryCount)
		}
	}

	if err := h.sup.ReportFailure(ctx, key, "verification failed"); err != nil {
		t.Fatal(err)
	}
	st, _ := h.sup.State(key)
	if st.Status != StatusEscalated {
		t.Fatalf("status = %s, want escalated", st.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(escalations) != 1 {
		t.Fatalf("escalations = %d, want 1", len(escalations))
	}
	esc := escalations[0]
	if esc.TaskID != key || esc.RetryCount != cfg.MaxRetries {
		t.Errorf("escalation = %+v", esc)
	}
	if esc.Error != "verification failed" {
		t.Errorf("escalation error = %q", esc.Error)
	}
	if events != 1 {
		t.Errorf("task.escalated events = %d, want 1", events)
	}
}

func TestEscalatedTaskIgnoresFurtherFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	h := newHarness(t, cfg)
	key, _ := h.delegateAndSupervise(t)
	ctx := context.Background()

	if err := h.sup.ReportFailure(ctx, key, "crash"); err != nil {
		t.Fatal(err)
	}
	if err := h.sup.ReportFailure(ctx, key, "crash"); err != nil {
		t.Fatal(err)
	}
	st, _ := h.sup.State(key)
	if st.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1 after escalation", st.RetryCount)
	}
}

func TestPollDetectsCompletion(t *testing.T) {
	h := newHarness(t, testConfig())
	key, _ := h.delegateAndSupervise(t)
	ctx := context.Background()

	if err := h.tasks.MarkCompleted(ctx, key, "all checks green"); err != nil {
		t.Fatal(err)
	}
	if done := h.sup.poll(ctx, key); !done {
		t.Fatal("poll did not end supervision for a completed task")
	}
	st, _ := h.sup.State(key)
	if st.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", st.Status)
	}
}

func TestPollSavesPeriodicCheckpoint(t *testing.T) {
	cfg := testConfig()
	cfg.CheckpointInterval = 0
	h := newHarness(t, cfg)

	var saved int
	h.bus.Subscribe("checkpoint.saved", func(e event.Event) { saved++ })

	key, _ := h.delegateAndSupervise(t)
	if done := h.sup.poll(context.Background(), key); done {
		t.Fatal("poll ended supervision unexpectedly")
	}

	cp, err := h.cps.Last(key)
	if err != nil {
		t.Fatal(err)
	}
	if cp == nil {
		t.Fatal("no checkpoint written")
	}
	if cp.State["status"] != "in_progress" {
		t.Errorf("checkpoint state = %v", cp.State)
	}
	if len(cp.FilesModified) != 1 || cp.FilesModified[0] != "src/parser.py" {
		t.Errorf("checkpoint files = %v", cp.FilesModified)
	}
	if saved != 1 {
		t.Errorf("checkpoint.saved events = %d, want 1", saved)
	}
}

func TestRoutePermission(t *testing.T) {
	h := newHarness(t, testConfig())
	key, sessionID := h.delegateAndSupervise(t)

	var routed []string
	h.bus.Subscribe("permission.routed", func(e event.Event) {
		routed = append(routed, e.(event.PermissionRoutedEvent).Decision)
	})

	got, err := h.sup.RoutePermission(key, "read the config loader")
	if err != nil || got != DecisionApprove {
		t.Fatalf("read action routed %s, %v", got, err)
	}
	got, err = h.sup.RoutePermission(key, "delete stale test fixtures")
	if err != nil || got != DecisionDeny {
		t.Fatalf("delete action routed %s, %v", got, err)
	}

	got, err = h.sup.RoutePermission(key, "rewrite the auth middleware")
	if err != nil || got != DecisionEscalate {
		t.Fatalf("ambiguous action routed %s, %v", got, err)
	}
	rec, err := h.pool.Get(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != sessionpool.StateWaitingInput {
		t.Errorf("session state = %s, want waiting_input", rec.State)
	}

	if err := h.sup.ResolvePermission(key, true); err != nil {
		t.Fatal(err)
	}
	rec, _ = h.pool.Get(sessionID)
	if rec.State != sessionpool.StateReady {
		t.Errorf("session state after resolve = %s, want ready", rec.State)
	}

	want := []string{"approve", "deny", "escalate"}
	if len(routed) != len(want) {
		t.Fatalf("routed events = %v", routed)
	}
	for i := range want {
		if routed[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, routed[i], want[i])
		}
	}
}

func TestResumeResetsRetriesAndRedelegates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	h := newHarness(t, cfg)
	key, _ := h.delegateAndSupervise(t)
	ctx := context.Background()

	if err := h.sup.ReportFailure(ctx, key, "crash"); err != nil {
		t.Fatal(err)
	}
	if err := h.sup.Resume(ctx, key); err != nil {
		t.Fatal(err)
	}

	st, _ := h.sup.State(key)
	if st.Status != StatusMonitoring || st.RetryCount != 0 {
		t.Errorf("state after resume = %+v", st)
	}
	retry := h.current(t, key)
	if retry.Status != delegator.StatusInProgress {
		t.Errorf("resumed task status = %s", retry.Status)
	}
}

func TestResumeRequiresEscalation(t *testing.T) {
	h := newHarness(t, testConfig())
	key, _ := h.delegateAndSupervise(t)

	err := h.sup.Resume(context.Background(), key)
	if !errors.Is(err, ErrNotEscalated) {
		t.Fatalf("got %v, want ErrNotEscalated", err)
	}
}

func TestCancelEscalatedTask(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	h := newHarness(t, cfg)
	key, _ := h.delegateAndSupervise(t)
	ctx := context.Background()

	if err := h.sup.ReportFailure(ctx, key, "crash"); err != nil {
		t.Fatal(err)
	}
	if err := h.sup.CancelTask(ctx, key); err != nil {
		t.Fatal(err)
	}
	st, _ := h.sup.State(key)
	if st.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", st.Status)
	}
}

func TestUnsupervisedTaskRejected(t *testing.T) {
	h := newHarness(t, testConfig())

	if _, err := h.sup.RoutePermission("nope", "read file"); !errors.Is(err, ErrNotSupervised) {
		t.Errorf("RoutePermission: got %v", err)
	}
	if err := h.sup.ReportFailure(context.Background(), "nope", "x"); !errors.Is(err, ErrNotSupervised) {
		t.Errorf("ReportFailure: got %v", err)
	}
	if _, err := h.sup.State("nope"); !errors.Is(err, ErrNotSupervised) {
		t.Errorf("State: got %v", err)
	}
}

func TestCheckpointStoreSequencing(t *testing.T) {
	cs, err := NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	last, err := cs.Last("task-1")
	if err != nil || last != nil {
		t.Fatalf("Last on empty store = %v, %v", last, err)
	}

	for i, summary := range []string{"first", "second", "third"} {
		cp, err := cs.Save("task-1", map[string]string{"step": summary}, []string{"a.go"}, summary)
		if err != nil {
			t.Fatal(err)
		}
		if cp.Seq != i+1 {
			t.Errorf("seq = %d, want %d", cp.Seq, i+1)
		}
	}

	all, err := cs.List("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].OutputSummary != "first" || all[2].OutputSummary != "third" {
		t.Errorf("List = %+v", all)
	}

	last, err = cs.Last("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if last.OutputSummary != "third" {
		t.Errorf("Last = %+v", last)
	}
}

func TestCheckpointStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	cs, err := NewCheckpointStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Save("task-1", nil, nil, "good"); err != nil {
		t.Fatal(err)
	}

	bad := filepath.Join(dir, "checkpoints", "task-1", "cp-0002.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := cs.Last("task-1"); !errors.Is(err, ErrCorruptCheckpoint) {
		t.Errorf("Last: got %v, want ErrCorruptCheckpoint", err)
	}
}

func TestDefaultPermissionClassifier(t *testing.T) {
	tests := []struct {
		action string
		want   Decision
	}{
		{"read src/main.go", DecisionApprove},
		{"grep for callers of Build", DecisionApprove},
		{"run the test suite", DecisionApprove},
		{"lint the package", DecisionApprove},
		{"delete the old migrations", DecisionDeny},
		{"curl the release endpoint", DecisionDeny},
		{"install a new dependency", DecisionDeny},
		{"delete failing test fixtures", DecisionDeny},
		{"refactor the session layer", DecisionEscalate},
		{"", DecisionEscalate},
	}
	for _, tt := range tests {
		if got := DefaultPermissionClassifier(tt.action); got != tt.want {
			t.Errorf("classify(%q) = %s, want %s", tt.action, got, tt.want)
		}
	}
}
