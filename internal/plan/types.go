package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared by plan consumers.
var (
	// ErrNotFound indicates the requested plan or version does not exist.
	ErrNotFound = errors.New("plan not found")

	// ErrInvalidTransition indicates a task status change that would move
	// backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrTaskIndex indicates a phase or task index outside the plan.
	ErrTaskIndex = errors.New("task index out of range")
)

// TaskStatus tracks a plan task through its lifecycle.
type TaskStatus string

const (
	// TaskPending means the task has not been delegated yet.
	TaskPending TaskStatus = "pending"

	// TaskInProgress means a session is actively working the task.
	TaskInProgress TaskStatus = "in_progress"

	// TaskCompleted means the task finished and its results were recorded.
	TaskCompleted TaskStatus = "completed"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step. Status never regresses within a plan version.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskInProgress
	case TaskInProgress:
		return next == TaskCompleted
	default:
		return false
	}
}

// Overview captures the goal a plan serves and how success is judged.
type Overview struct {
	Goal            string   `json:"goal"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
}

// Task is a single unit of delegable work within a phase.
type Task struct {
	Description  string     `json:"description"`
	Files        []string   `json:"files,omitempty"`
	Verification []string   `json:"verification,omitempty"`
	Status       TaskStatus `json:"status"`
}

// Phase groups tasks that belong to the same stage of the plan.
// CompletedAt is set when the last task in the phase completes.
type Phase struct {
	Name        string     `json:"name"`
	Tasks       []Task     `json:"tasks"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether every task in the phase is done.
func (p Phase) Completed() bool {
	for _, t := range p.Tasks {
		if t.Status != TaskCompleted {
			return false
		}
	}
	return len(p.Tasks) > 0
}

// Decision records a design choice with enough context to brief a task on it.
type Decision struct {
	Statement    string   `json:"statement"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Plan is one immutable version of a phased work breakdown.
type Plan struct {
	ID        string     `json:"id"`
	Project   string     `json:"project"`
	Version   int        `json:"version"`
	Overview  Overview   `json:"overview"`
	Phases    []Phase    `json:"phases"`
	Decisions []Decision `json:"decisions,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// New creates a version-1 plan with a fresh ID.
func New(project string, overview Overview, phases []Phase, decisions []Decision) *Plan {
	return &Plan{
		ID:        uuid.NewString(),
		Project:   project,
		Version:   1,
		Overview:  overview,
		Phases:    phases,
		Decisions: decisions,
		CreatedAt: time.Now(),
	}
}

// Task returns the task at the given phase and index.
func (p *Plan) Task(phase, index int) (*Task, error) {
	if phase < 0 || phase >= len(p.Phases) {
		return nil, fmt.Errorf("%w: phase %d of %d", ErrTaskIndex, phase, len(p.Phases))
	}
	tasks := p.Phases[phase].Tasks
	if index < 0 || index >= len(tasks) {
		return nil, fmt.Errorf("%w: task %d of %d in phase %d", ErrTaskIndex, index, len(tasks), phase)
	}
	return &tasks[index], nil
}

// SetTaskStatus applies a forward status transition to the task at the given
// position, returning ErrInvalidTransition if the move would regress.
func (p *Plan) SetTaskStatus(phase, index int, status TaskStatus) error {
	task, err := p.Task(phase, index)
	if err != nil {
		return err
	}
	if !task.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, status)
	}
	task.Status = status
	return nil
}

// Clone returns a deep copy of the plan. Mutating the copy never touches the
// original, which is what lets the store hand out snapshots safely.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Overview.SuccessCriteria = append([]string(nil), p.Overview.SuccessCriteria...)
	c.Overview.Constraints = append([]string(nil), p.Overview.Constraints...)
	c.Phases = make([]Phase, len(p.Phases))
	for i, ph := range p.Phases {
		cp := ph
		if ph.CompletedAt != nil {
			done := *ph.CompletedAt
			cp.CompletedAt = &done
		}
		cp.Tasks = make([]Task, len(ph.Tasks))
		for j, t := range ph.Tasks {
			ct := t
			ct.Files = append([]string(nil), t.Files...)
			ct.Verification = append([]string(nil), t.Verification...)
			cp.Tasks[j] = ct
		}
		c.Phases[i] = cp
	}
	c.Decisions = make([]Decision, len(p.Decisions))
	for i, d := range p.Decisions {
		cd := d
		cd.Alternatives = append([]string(nil), d.Alternatives...)
		c.Decisions[i] = cd
	}
	return &c
}

// Validate checks structural invariants before a plan is stored.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return errors.New("plan ID cannot be empty")
	}
	if p.Project == "" {
		return errors.New("plan project cannot be empty")
	}
	if p.Version < 1 {
		return fmt.Errorf("plan version must be >= 1, got %d", p.Version)
	}
	if p.Overview.Goal == "" {
		return errors.New("plan goal cannot be empty")
	}
	for i, ph := range p.Phases {
		if len(ph.Tasks) == 0 {
			return fmt.Errorf("phase %d (%s) has no tasks", i, ph.Name)
		}
		for j, t := range ph.Tasks {
			if t.Description == "" {
				return fmt.Errorf("task %d in phase %d has no description", j, i)
			}
			switch t.Status {
			case TaskPending, TaskInProgress, TaskCompleted:
			default:
				return fmt.Errorf("task %d in phase %d has unknown status %q", j, i, t.Status)
			}
		}
	}
	return nil
}
