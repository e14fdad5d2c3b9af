package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/overseer/internal/delegator"
	"github.com/Iron-Ham/overseer/internal/event"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/sessionpool"
	"github.com/Iron-Ham/overseer/internal/taskctx"
)

// Sentinel errors for supervision.
var (
	// ErrNotSupervised indicates no supervision exists for the task.
	ErrNotSupervised = errors.New("task not supervised")

	// ErrNotEscalated indicates resume/cancel was called on a task that
	// has not escalated.
	ErrNotEscalated = errors.New("task not escalated")
)

// Status of one supervision.
type Status string

const (
	// StatusMonitoring means the loop is watching the task.
	StatusMonitoring Status = "monitoring"

	// StatusEscalated means retries are exhausted; a human must act.
	StatusEscalated Status = "escalated"

	// StatusCompleted means the task finished and supervision ended.
	StatusCompleted Status = "completed"
)

// Escalation is the payload handed to the notification collaborator when a
// task exhausts its retries.
type Escalation struct {
	TaskID         string
	RetryCount     int
	LastCheckpoint *Checkpoint
	FilesModified  []string
	Error          string
}

// EscalateFunc is the sole extension point to an external notifier.
type EscalateFunc func(Escalation)

// Config holds the supervisor's tunables.
type Config struct {
	PollInterval       time.Duration
	CheckpointInterval time.Duration
	MaxRetries         int
}

// State is a read-only snapshot of one supervision.
type State struct {
	TaskID         string
	SessionID      string
	Status         Status
	RetryCount     int
	LastCheckpoint *Checkpoint
	StartedAt      time.Time
}

// supState is the internal mutable record, guarded by the Supervisor mutex.
// key is the task ID supervision started with; taskID tracks the current
// delegation, which changes on retry.
type supState struct {
	key        string
	taskID     string
	sessionID  string
	status     Status
	retryCount int
	startedAt  time.Time
	lastCp     *Checkpoint
	lastCpAt   time.Time
	redelegate bool // retry pending because re-delegation hit a conflict
	stop       chan struct{}
}

// Supervisor runs one monitoring loop per delegated task.
type Supervisor struct {
	tasks       *delegator.Delegator
	pool        *sessionpool.Pool
	checkpoints *CheckpointStore
	classify    PermissionClassifier
	onEscalate  EscalateFunc
	bus         *event.Bus
	log         *logging.Logger
	cfg         Config

	mu     sync.Mutex
	states map[string]*supState
	wg     sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPermissionClassifier replaces the permission routing policy.
func WithPermissionClassifier(c PermissionClassifier) Option {
	return func(s *Supervisor) {
		s.classify = c
	}
}

// WithEscalateFunc sets the notification collaborator.
func WithEscalateFunc(fn EscalateFunc) Option {
	return func(s *Supervisor) {
		s.onEscalate = fn
	}
}

// New creates a Supervisor.
func New(tasks *delegator.Delegator, pool *sessionpool.Pool, checkpoints *CheckpointStore, cfg Config, bus *event.Bus, log *logging.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		tasks:       tasks,
		pool:        pool,
		checkpoints: checkpoints,
		classify:    DefaultPermissionClassifier,
		bus:         bus,
		log:         log.WithComponent("supervisor"),
		cfg:         cfg,
		states:      make(map[string]*supState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins supervising a delegated task worked by the given session.
func (s *Supervisor) Start(taskID, sessionID string) (State, error) {
	if _, err := s.tasks.Get(taskID); err != nil {
		return State{}, err
	}

	st := &supState{
		key:       taskID,
		taskID:    taskID,
		sessionID: sessionID,
		status:    StatusMonitoring,
		startedAt: time.Now(),
		lastCpAt:  time.Now(),
		stop:      make(chan struct{}),
	}

	s.mu.Lock()
	if _, exists := s.states[taskID]; exists {
		s.mu.Unlock()
		return State{}, fmt.Errorf("task %s already supervised", taskID)
	}
	s.states[taskID] = st
	s.mu.Unlock()

	s.wg.Add(1)
	go s.monitor(st)

	s.log.Info("supervision started", "task_id", taskID, "session_id", sessionID)
	return s.snapshot(st), nil
}

// monitor is the per-task loop. Each tick runs one poll pass.
func (s *Supervisor) monitor(st *supState) {
	defer s.wg.Done()

	// Snapshot the stop channel; Resume installs a fresh one for its
	// replacement loop.
	s.mu.Lock()
	stop := st.stop
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := s.poll(context.Background(), st.key); done {
				return
			}
		}
	}
}

// poll runs one monitoring pass: completion check, health check, pending
// re-delegation, periodic checkpoint. Returns true when supervision is over.
func (s *Supervisor) poll(ctx context.Context, key string) bool {
	s.mu.Lock()
	st, ok := s.states[key]
	if !ok || st.status != StatusMonitoring {
		s.mu.Unlock()
		return true
	}
	taskID := st.taskID
	sessionID := st.sessionID
	redelegate := st.redelegate
	checkpointDue := time.Since(st.lastCpAt) >= s.cfg.CheckpointInterval
	s.mu.Unlock()

	if redelegate {
		s.tryRedelegate(ctx, st)
		return false
	}

	dt, err := s.tasks.Get(taskID)
	if err != nil {
		s.log.Error("supervised task vanished", "task_id", taskID, "error", err)
		return false
	}
	if dt.Status == delegator.StatusCompleted {
		s.complete(st)
		return true
	}

	rec, err := s.pool.Get(sessionID)
	if err == nil && rec.State == sessionpool.StateFailed {
		s.handleFailure(ctx, st, "session failed: "+rec.FailureInfo)
		s.mu.Lock()
		done := st.status != StatusMonitoring
		s.mu.Unlock()
		return done
	}

	if checkpointDue {
		s.saveCheckpoint(st, "periodic checkpoint")
	}
	return false
}

// ReportFailure is the explicit failure signal from a session round trip
// (timeout, verification failure, process error). It counts against retries.
func (s *Supervisor) ReportFailure(ctx context.Context, taskID, errDetail string) error {
	s.mu.Lock()
	st, ok := s.states[taskID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}
	s.handleFailure(ctx, st, errDetail)
	return nil
}

// handleFailure increments the retry count, then either re-delegates or
// escalates once the count reaches the limit.
func (s *Supervisor) handleFailure(ctx context.Context, st *supState, errDetail string) {
	s.mu.Lock()
	if st.status != StatusMonitoring {
		s.mu.Unlock()
		return
	}
	st.retryCount++
	retries := st.retryCount
	s.mu.Unlock()

	if retries >= s.cfg.MaxRetries {
		s.escalate(ctx, st, errDetail)
		return
	}

	s.log.Info("task failed, retrying", "task_id", st.key,
		"retry", retries, "max_retries", s.cfg.MaxRetries, "error", errDetail)

	// Tear down the failed attempt. The delegation may already be terminal
	// if the failure came from the delegator side.
	if err := s.tasks.MarkFailed(ctx, st.taskID, errDetail); err != nil &&
		!errors.Is(err, delegator.ErrInvalidTransition) && !errors.Is(err, delegator.ErrTaskNotFound) {
		s.log.Error("failed to mark task failed", "task_id", st.taskID, "error", err)
	}
	if err := s.pool.Stop(st.sessionID); err != nil && !errors.Is(err, sessionpool.ErrSessionNotFound) {
		s.log.Warn("failed to stop session", "session_id", st.sessionID, "error", err)
	}

	s.tryRedelegate(ctx, st)
}

// tryRedelegate starts a fresh attempt: new delegation carrying the last
// checkpoint, new session, supervision switched over. A conflict or an
// exhausted pool leaves the retry pending for the next poll.
func (s *Supervisor) tryRedelegate(ctx context.Context, st *supState) {
	old, err := s.tasks.Get(st.taskID)
	if err != nil {
		s.log.Error("cannot re-delegate, old task missing", "task_id", st.taskID, "error", err)
		return
	}

	var extra []taskctx.HistoryItem
	s.mu.Lock()
	lastCp := st.lastCp
	s.mu.Unlock()
	if lastCp != nil {
		extra = append(extra, taskctx.HistoryItem{
			TaskDescription: old.Description + " (previous attempt)",
			Outcome:         "checkpoint: " + lastCp.OutputSummary,
			FilesModified:   lastCp.FilesModified,
		})
	}

	projectPath := ""
	if rec, err := s.pool.Get(st.sessionID); err == nil {
		projectPath = rec.ProjectPath
	}

	newTask, err := s.tasks.Delegate(ctx, old.PlanID, old.PhaseIndex, old.TaskIndex, extra...)
	if err != nil {
		s.deferRedelegate(st, err)
		return
	}
	newSession, err := s.pool.Start(projectPath)
	if err != nil {
		// Roll the delegation back so its locks don't strand.
		if cerr := s.tasks.Cancel(ctx, newTask.ID); cerr != nil {
			s.log.Error("failed to roll back delegation", "task_id", newTask.ID, "error", cerr)
		}
		s.deferRedelegate(st, err)
		return
	}
	if err := s.tasks.MarkInProgress(ctx, newTask.ID, newSession); err != nil {
		s.log.Error("failed to mark retry in progress", "task_id", newTask.ID, "error", err)
	}

	s.mu.Lock()
	st.taskID = newTask.ID
	st.sessionID = newSession
	st.redelegate = false
	s.mu.Unlock()

	s.log.Info("task re-delegated", "task_id", st.key,
		"new_task_id", newTask.ID, "session_id", newSession)
}

func (s *Supervisor) deferRedelegate(st *supState, cause error) {
	s.mu.Lock()
	st.redelegate = true
	s.mu.Unlock()
	s.log.Warn("re-delegation deferred", "task_id", st.key, "error", cause)
}

// escalate hands the task to a human: terminal for autonomous progress.
func (s *Supervisor) escalate(ctx context.Context, st *supState, errDetail string) {
	s.mu.Lock()
	st.status = StatusEscalated
	retries := st.retryCount
	lastCp := st.lastCp
	taskID := st.taskID
	select {
	case <-st.stop:
	default:
		close(st.stop)
	}
	s.mu.Unlock()

	var files []string
	if dt, err := s.tasks.Get(taskID); err == nil {
		files = dt.Resources
		if !dt.Status.IsTerminal() {
			if err := s.tasks.MarkFailed(ctx, taskID, errDetail); err != nil {
				s.log.Error("failed to mark escalated task failed", "task_id", taskID, "error", err)
			}
		}
	}
	if err := s.pool.Stop(st.sessionID); err != nil && !errors.Is(err, sessionpool.ErrSessionNotFound) {
		s.log.Warn("failed to stop session on escalation", "session_id", st.sessionID, "error", err)
	}

	s.log.Warn("task escalated", "task_id", st.key, "retries", retries, "error", errDetail)
	if s.bus != nil {
		s.bus.Publish(event.NewTaskEscalatedEvent(st.key, retries, errDetail))
	}
	if s.onEscalate != nil {
		s.onEscalate(Escalation{
			TaskID:         st.key,
			RetryCount:     retries,
			LastCheckpoint: lastCp,
			FilesModified:  files,
			Error:          errDetail,
		})
	}
}

// SaveCheckpoint persists an on-demand checkpoint with the given summary.
func (s *Supervisor) SaveCheckpoint(taskID, summary string) (*Checkpoint, error) {
	s.mu.Lock()
	st, ok := s.states[taskID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}
	return s.saveCheckpoint(st, summary), nil
}

func (s *Supervisor) saveCheckpoint(st *supState, summary string) *Checkpoint {
	s.mu.Lock()
	taskID := st.taskID
	sessionID := st.sessionID
	s.mu.Unlock()

	state := map[string]string{}
	var files []string
	if dt, err := s.tasks.Get(taskID); err == nil {
		state["status"] = dt.Status.String()
		files = dt.Resources
	}
	if rec, err := s.pool.Get(sessionID); err == nil && len(rec.Output) > 0 {
		tail := rec.Output
		if len(tail) > 5 {
			tail = tail[len(tail)-5:]
		}
		summary = summary + "; recent output: " + strings.Join(tail, " / ")
	}

	cp, err := s.checkpoints.Save(st.key, state, files, summary)
	if err != nil {
		s.log.Error("checkpoint save failed", "task_id", st.key, "error", err)
		return nil
	}

	s.mu.Lock()
	st.lastCp = cp
	st.lastCpAt = time.Now()
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event.NewCheckpointSavedEvent(st.key, files))
	}
	s.log.Debug("checkpoint saved", "task_id", st.key, "seq", cp.Seq)
	return cp
}

// RoutePermission classifies a permission request from the session. An
// escalated request parks the session in WAITING_INPUT until
// ResolvePermission supplies the human decision.
func (s *Supervisor) RoutePermission(taskID, action string) (Decision, error) {
	s.mu.Lock()
	st, ok := s.states[taskID]
	var sessionID string
	if ok {
		sessionID = st.sessionID
	}
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}

	decision := s.classify(action)
	if s.bus != nil {
		s.bus.Publish(event.NewPermissionRoutedEvent(taskID, action, string(decision)))
	}

	if decision == DecisionEscalate {
		if err := s.pool.AwaitInput(sessionID, action); err != nil {
			return decision, err
		}
	}
	s.log.Info("permission routed", "task_id", taskID, "decision", decision)
	return decision, nil
}

// ResolvePermission completes an escalated permission round trip.
func (s *Supervisor) ResolvePermission(taskID string, approved bool) error {
	s.mu.Lock()
	st, ok := s.states[taskID]
	var sessionID string
	if ok {
		sessionID = st.sessionID
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}

	response := "denied by operator"
	if approved {
		response = "approved by operator"
	}
	return s.pool.ResolveInput(sessionID, response)
}

// NotifyCompleted ends supervision for a task that finished successfully.
func (s *Supervisor) NotifyCompleted(taskID string) error {
	s.mu.Lock()
	st, ok := s.states[taskID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}
	s.complete(st)
	return nil
}

func (s *Supervisor) complete(st *supState) {
	s.mu.Lock()
	if st.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	st.status = StatusCompleted
	select {
	case <-st.stop:
	default:
		close(st.stop)
	}
	s.mu.Unlock()
	s.log.Info("supervision completed", "task_id", st.key)
}

// Resume restarts an escalated task after human intervention: retry count
// resets and a fresh attempt is delegated.
func (s *Supervisor) Resume(ctx context.Context, taskID string) error {
	s.mu.Lock()
	st, ok := s.states[taskID]
	if ok && st.status != StatusEscalated {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotEscalated, taskID, st.status)
	}
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}
	st.status = StatusMonitoring
	st.retryCount = 0
	st.stop = make(chan struct{}) // the escalated monitor loop has exited
	s.mu.Unlock()

	s.tryRedelegate(ctx, st)

	s.wg.Add(1)
	go s.monitor(st)
	s.log.Info("supervision resumed", "task_id", st.key)
	return nil
}

// CancelTask abandons an escalated task entirely, cancelling any live
// delegation and ending supervision.
func (s *Supervisor) CancelTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	st, ok := s.states[taskID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}

	if dt, err := s.tasks.Get(st.taskID); err == nil && !dt.Status.IsTerminal() {
		if err := s.tasks.Cancel(ctx, st.taskID); err != nil {
			return err
		}
	}
	s.complete(st)
	return nil
}

// State returns a snapshot of one supervision.
func (s *Supervisor) State(taskID string) (State, error) {
	s.mu.Lock()
	st, ok := s.states[taskID]
	s.mu.Unlock()
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrNotSupervised, taskID)
	}
	return s.snapshot(st), nil
}

// List returns snapshots of every supervision.
func (s *Supervisor) List() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, s.snapshotLocked(st))
	}
	return out
}

// Close stops every monitoring loop.
func (s *Supervisor) Close() {
	s.mu.Lock()
	for _, st := range s.states {
		select {
		case <-st.stop:
		default:
			close(st.stop)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) snapshot(st *supState) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(st)
}

func (s *Supervisor) snapshotLocked(st *supState) State {
	return State{
		TaskID:         st.key,
		SessionID:      st.sessionID,
		Status:         st.status,
		RetryCount:     st.retryCount,
		LastCheckpoint: st.lastCp,
		StartedAt:      st.startedAt,
	}
}
