package delegator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan"
	"github.com/Iron-Ham/overseer/internal/plan/store"
	"github.com/Iron-Ham/overseer/internal/respool"
	"github.com/Iron-Ham/overseer/internal/taskctx"
)

// Delegator owns the run-time task table. All methods are safe for
// concurrent use.
type Delegator struct {
	locks     *respool.Pool
	store     *store.Store
	assembler *taskctx.Assembler
	search    taskctx.DocSearcher
	log       *logging.Logger

	mu      sync.Mutex
	tasks   map[string]*Task
	archive map[string]*Task
	history map[string][]taskctx.HistoryItem // "planID/phase" -> completed work
}

// Option configures a Delegator.
type Option func(*Delegator)

// WithDocSearch wires the optional documentation-search collaborator into
// context assembly.
func WithDocSearch(search taskctx.DocSearcher) Option {
	return func(d *Delegator) {
		d.search = search
	}
}

// New creates a Delegator.
func New(locks *respool.Pool, planStore *store.Store, assembler *taskctx.Assembler, log *logging.Logger, opts ...Option) *Delegator {
	d := &Delegator{
		locks:     locks,
		store:     planStore,
		assembler: assembler,
		log:       log.WithComponent("delegator"),
		tasks:     make(map[string]*Task),
		archive:   make(map[string]*Task),
		history:   make(map[string][]taskctx.HistoryItem),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delegate turns the plan task at (phase, index) into a DelegatedTask.
// Resource locks are derived from the task's file list and acquired as one
// atomic set; a conflict is returned without creating anything, leaving the
// plan task pending. extraHistory is prepended to the phase history fed into
// context assembly, which is how a retry carries its checkpoint forward.
func (d *Delegator) Delegate(ctx context.Context, planID string, phase, index int, extraHistory ...taskctx.HistoryItem) (*Task, error) {
	p, err := d.store.Get(ctx, planID, 0)
	if err != nil {
		return nil, err
	}
	planTask, err := p.Task(phase, index)
	if err != nil {
		return nil, err
	}
	if planTask.Status != plan.TaskPending {
		return nil, fmt.Errorf("%w: plan task is %s", ErrAlreadyDelegated, planTask.Status)
	}

	if id, ok := d.activeDelegation(planID, phase, index); ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDelegated, id)
	}

	taskID := uuid.NewString()
	if err := d.locks.Acquire(taskID, planTask.Files); err != nil {
		// Lock conflict: nothing was created, the caller retries later.
		return nil, err
	}

	history := append(append([]taskctx.HistoryItem(nil), extraHistory...), d.PhaseHistory(planID, phase)...)
	bundle := d.assembler.Build(ctx, planTask, p, history, d.search)

	t := &Task{
		ID:          taskID,
		PlanID:      planID,
		PlanVersion: p.Version,
		PhaseIndex:  phase,
		TaskIndex:   index,
		Description: planTask.Description,
		Resources:   append([]string(nil), planTask.Files...),
		Status:      StatusDelegated,
		Context:     bundle,
		DelegatedAt: time.Now(),
	}

	// Re-check under the lock at insert time. Two callers can pass the early
	// check concurrently when the task holds no files, so the insert decides.
	d.mu.Lock()
	for _, existing := range d.tasks {
		if existing.PlanID == planID && existing.PhaseIndex == phase && existing.TaskIndex == index && !existing.Status.IsTerminal() {
			id := existing.ID
			d.mu.Unlock()
			d.locks.Release(taskID)
			return nil, fmt.Errorf("%w: %s", ErrAlreadyDelegated, id)
		}
	}
	d.tasks[taskID] = t
	d.mu.Unlock()

	d.log.Info("task delegated", "task_id", taskID, "plan_id", planID,
		"phase", phase, "index", index, "resources", len(t.Resources))
	return d.snapshot(t), nil
}

// activeDelegation reports an existing non-terminal delegation for the plan
// coordinate, if any.
func (d *Delegator) activeDelegation(planID string, phase, index int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tasks {
		if t.PlanID == planID && t.PhaseIndex == phase && t.TaskIndex == index && !t.Status.IsTerminal() {
			return t.ID, true
		}
	}
	return "", false
}

// MarkInProgress records the session working the task and moves the plan
// task to in_progress.
func (d *Delegator) MarkInProgress(ctx context.Context, taskID, sessionID string) error {
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !canTransition(t.Status, StatusInProgress) {
		status := t.Status
		d.mu.Unlock()
		return fmt.Errorf("%w: %s -> in_progress", ErrInvalidTransition, status)
	}
	t.Status = StatusInProgress
	t.SessionID = sessionID
	planID, phase, index := t.PlanID, t.PhaseIndex, t.TaskIndex
	d.mu.Unlock()

	if _, err := d.store.UpdateTaskStatus(ctx, planID, phase, index, plan.TaskInProgress); err != nil {
		return fmt.Errorf("failed to update plan task status: %w", err)
	}
	return nil
}

// MarkCompleted finishes a task successfully: locks are released, the plan
// task is completed, and the outcome joins the phase history.
func (d *Delegator) MarkCompleted(ctx context.Context, taskID, result string) error {
	t, err := d.finish(taskID, StatusCompleted, result, "")
	if err != nil {
		return err
	}

	d.mu.Lock()
	key := historyKey(t.PlanID, t.PhaseIndex)
	d.history[key] = append(d.history[key], taskctx.HistoryItem{
		TaskDescription: t.Description,
		Outcome:         result,
		FilesModified:   t.Resources,
	})
	d.mu.Unlock()

	if _, err := d.store.UpdateTaskStatus(ctx, t.PlanID, t.PhaseIndex, t.TaskIndex, plan.TaskCompleted); err != nil {
		return fmt.Errorf("failed to update plan task status: %w", err)
	}
	d.log.Info("task completed", "task_id", taskID)
	return nil
}

// MarkFailed finishes a task unsuccessfully: locks are released and the plan
// task is reset to pending in a new plan version so it can be re-delegated.
func (d *Delegator) MarkFailed(ctx context.Context, taskID, errDetail string) error {
	t, err := d.finish(taskID, StatusFailed, "", errDetail)
	if err != nil {
		return err
	}

	if err := d.resetPlanTask(ctx, t); err != nil {
		return err
	}
	d.log.Warn("task failed", "task_id", taskID, "error", errDetail)
	return nil
}

// Cancel aborts a non-terminal task, releasing its locks and resetting the
// plan task to pending.
func (d *Delegator) Cancel(ctx context.Context, taskID string) error {
	t, err := d.finish(taskID, StatusFailed, "", "cancelled")
	if err != nil {
		return err
	}
	if err := d.resetPlanTask(ctx, t); err != nil {
		return err
	}
	d.log.Info("task cancelled", "task_id", taskID)
	return nil
}

// finish applies a terminal transition, releases locks, and archives.
func (d *Delegator) finish(taskID string, to Status, result, errDetail string) (*Task, error) {
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !canTransition(t.Status, to) {
		status := t.Status
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, to)
	}
	t.Status = to
	t.Result = result
	t.Error = errDetail
	now := time.Now()
	t.CompletedAt = &now
	delete(d.tasks, taskID)
	d.archive[taskID] = t
	d.mu.Unlock()

	d.locks.Release(taskID)
	return t, nil
}

// resetPlanTask appends a plan version that returns the task to pending.
// Regression needs an explicit new version, which this is.
func (d *Delegator) resetPlanTask(ctx context.Context, t *Task) error {
	_, err := d.store.Append(ctx, t.PlanID, func(p *plan.Plan) error {
		planTask, terr := p.Task(t.PhaseIndex, t.TaskIndex)
		if terr != nil {
			return terr
		}
		planTask.Status = plan.TaskPending
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset plan task: %w", err)
	}
	return nil
}

// Get returns a snapshot of a live or archived task.
func (d *Delegator) Get(taskID string) (*Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[taskID]; ok {
		return d.snapshot(t), nil
	}
	if t, ok := d.archive[taskID]; ok {
		return d.snapshot(t), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// List returns snapshots of live tasks, optionally filtered by status.
func (d *Delegator) List(filter Status) []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Task
	for _, t := range d.tasks {
		if filter == "" || t.Status == filter {
			out = append(out, d.snapshot(t))
		}
	}
	return out
}

// Archived returns snapshots of terminal tasks.
func (d *Delegator) Archived() []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Task, 0, len(d.archive))
	for _, t := range d.archive {
		out = append(out, d.snapshot(t))
	}
	return out
}

// PhaseHistory returns the completed-work history for one plan phase.
func (d *Delegator) PhaseHistory(planID string, phase int) []taskctx.HistoryItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phaseHistory(planID, phase)
}

// phaseHistory returns a copy; callers outside the lock get the public
// wrapper.
func (d *Delegator) phaseHistory(planID string, phase int) []taskctx.HistoryItem {
	return append([]taskctx.HistoryItem(nil), d.history[historyKey(planID, phase)]...)
}

func (d *Delegator) snapshot(t *Task) *Task {
	c := *t
	c.Resources = append([]string(nil), t.Resources...)
	return &c
}

func historyKey(planID string, phase int) string {
	return fmt.Sprintf("%s/%d", planID, phase)
}
