package sessionpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/overseer/internal/agent"
	"github.com/Iron-Ham/overseer/internal/event"
	"github.com/Iron-Ham/overseer/internal/logging"
)

// defaultOutputBufferLines caps the retained output per session when the
// config leaves OutputBufferLines unset.
const defaultOutputBufferLines = 500

// AgentFactory builds the agent handle for a new session.
type AgentFactory func(projectPath string) agent.Agent

// session is one live pool entry. The record is guarded by the pool mutex;
// the agent round trip itself runs outside the lock.
type session struct {
	record Record
	agent  agent.Agent
}

// Config holds the pool's tunables.
type Config struct {
	MaxSessions       int
	SendTimeout       time.Duration
	HealthInterval    time.Duration
	LivenessThreshold time.Duration
	OutputBufferLines int
}

// Pool is the bounded session table. All methods are safe for concurrent use.
type Pool struct {
	cfg      Config
	stateDir string
	factory  AgentFactory
	bus      *event.Bus
	log      *logging.Logger

	mu          sync.RWMutex
	sessions    map[string]*session
	reconcile   []Record // reloaded non-terminal records marked FAILED
	loadErrs    []error  // corrupt records found on reload
	done        chan struct{}
	healthGroup sync.WaitGroup
}

// New creates a pool, reloading any persisted session records from stateDir.
// Records that were non-terminal when the previous process died are marked
// FAILED and reported by Reconciliation; undecodable records are reported by
// CorruptRecords. The health loop starts immediately.
func New(stateDir string, cfg Config, factory AgentFactory, bus *event.Bus, log *logging.Logger) (*Pool, error) {
	dir := filepath.Join(stateDir, "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	if cfg.OutputBufferLines <= 0 {
		cfg.OutputBufferLines = defaultOutputBufferLines
	}
	p := &Pool{
		cfg:      cfg,
		stateDir: dir,
		factory:  factory,
		bus:      bus,
		log:      log.WithComponent("sessionpool"),
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
	if err := p.reload(); err != nil {
		return nil, err
	}

	p.healthGroup.Add(1)
	go p.healthLoop()
	return p, nil
}

// reload reads persisted records and reconciles non-terminal ones to FAILED.
// In-memory state is never trusted across a process boundary.
func (p *Pool) reload() error {
	entries, err := os.ReadDir(p.stateDir)
	if err != nil {
		return fmt.Errorf("failed to read session directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(p.stateDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read session record %s: %w", e.Name(), err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.ID == "" {
			p.loadErrs = append(p.loadErrs, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, e.Name(), err))
			p.log.Error("corrupt session record on reload", "file", e.Name(), "error", err)
			continue
		}

		if !rec.State.IsTerminal() {
			rec.State = StateFailed
			rec.FailureInfo = "process restarted while session active"
			rec.UpdatedAt = time.Now()
			if err := p.persist(&rec); err != nil {
				return err
			}
			p.reconcile = append(p.reconcile, rec)
			p.log.Warn("reconciled stale session to failed", "session_id", rec.ID)
		}
		p.sessions[rec.ID] = &session{record: rec}
	}
	return nil
}

// Start brings up a new session for the given project, failing fast with
// ErrPoolExhausted when the non-terminal count is at the cap.
func (p *Pool) Start(projectPath string) (string, error) {
	now := time.Now()
	rec := Record{
		ID:          uuid.NewString(),
		ProjectPath: projectPath,
		State:       StateStarting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	p.mu.Lock()
	if p.activeLocked() >= p.cfg.MaxSessions {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: %d sessions active", ErrPoolExhausted, p.cfg.MaxSessions)
	}
	s := &session{record: rec, agent: p.factory(projectPath)}
	p.sessions[rec.ID] = s
	if err := p.persist(&s.record); err != nil {
		delete(p.sessions, rec.ID)
		p.mu.Unlock()
		return "", err
	}
	p.mu.Unlock()
	p.publishState(rec.ID, "", StateStarting, "session created")

	if err := p.transition(rec.ID, StateReady, "startup complete"); err != nil {
		return "", err
	}
	p.log.Info("session started", "session_id", rec.ID, "project", projectPath)
	return rec.ID, nil
}

// Send runs one prompt round trip on a READY session. The session is BUSY
// for the duration; on timeout it stays BUSY and the health loop reclaims it.
func (p *Pool) Send(ctx context.Context, sessionID, prompt string, profile agent.PermissionProfile) (*agent.Response, error) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if s.record.State != StateReady {
		state := s.record.State
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s is %s, want ready", ErrInvalidState, sessionID, state)
	}
	s.record.State = StateBusy
	s.record.UpdatedAt = time.Now()
	if err := p.persist(&s.record); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	ag := s.agent
	p.mu.Unlock()
	p.publishState(sessionID, StateReady, StateBusy, "prompt dispatched")

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	resp, err := ag.Send(sendCtx, prompt, profile)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Leave the session BUSY; the health loop will fail it once it
			// crosses the liveness threshold.
			p.log.Warn("session send timed out", "session_id", sessionID)
			return nil, fmt.Errorf("%w: after %s", ErrTimeout, p.cfg.SendTimeout)
		}
		if terr := p.transition(sessionID, StateFailed, err.Error()); terr != nil {
			p.log.Error("failed to mark session failed", "session_id", sessionID, "error", terr)
		}
		return nil, fmt.Errorf("session %s send failed: %w", sessionID, err)
	}

	p.appendOutput(sessionID, resp.Text)
	if err := p.transition(sessionID, StateReady, "response received"); err != nil {
		return resp, err
	}
	return resp, nil
}

// AwaitInput parks a READY session in WAITING_INPUT while an approval is
// routed. ResolveInput completes the round trip.
func (p *Pool) AwaitInput(sessionID, request string) error {
	if err := p.transition(sessionID, StateWaitingInput, request); err != nil {
		return err
	}
	p.appendOutput(sessionID, "[approval requested] "+request)
	return nil
}

// ResolveInput returns a WAITING_INPUT session to READY with the decision.
func (p *Pool) ResolveInput(sessionID, response string) error {
	p.appendOutput(sessionID, "[approval resolved] "+response)
	return p.transition(sessionID, StateReady, response)
}

// Stop shuts a session down deliberately. Stopping a terminal session is a
// no-op.
func (p *Pool) Stop(sessionID string) error {
	p.mu.RLock()
	s, ok := p.sessions[sessionID]
	var state State
	if ok {
		state = s.record.State
	}
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if state.IsTerminal() {
		return nil
	}
	return p.transition(sessionID, StateStopped, "stopped by caller")
}

// Fail forces a session to FAILED with the given reason.
func (p *Pool) Fail(sessionID, reason string) error {
	return p.transition(sessionID, StateFailed, reason)
}

// Get returns a snapshot of one session record.
func (p *Pool) Get(sessionID string) (Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return cloneRecord(&s.record), nil
}

// List returns snapshots of every session record.
func (p *Pool) List() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, cloneRecord(&s.record))
	}
	return out
}

// Active returns the number of non-terminal sessions.
func (p *Pool) Active() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeLocked()
}

// Reconciliation returns the records that were reloaded as FAILED on
// restart and still need operator attention.
func (p *Pool) Reconciliation() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Record(nil), p.reconcile...)
}

// CorruptRecords returns decode failures found while reloading state.
func (p *Pool) CorruptRecords() []error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]error(nil), p.loadErrs...)
}

// Close stops the health loop. Live sessions are left as persisted; a later
// restart reconciles them.
func (p *Pool) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.healthGroup.Wait()
}

func (p *Pool) activeLocked() int {
	n := 0
	for _, s := range p.sessions {
		if !s.record.State.IsTerminal() {
			n++
		}
	}
	return n
}

// transition applies a state change, persists it, and publishes the event.
func (p *Pool) transition(sessionID string, to State, reason string) error {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	from := s.record.State
	if !canTransition(from, to) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	s.record.State = to
	s.record.UpdatedAt = time.Now()
	if to == StateFailed {
		s.record.FailureInfo = reason
	}
	err := p.persist(&s.record)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.publishState(sessionID, from, to, reason)
	return nil
}

func (p *Pool) publishState(sessionID string, from, to State, reason string) {
	if p.bus != nil {
		p.bus.Publish(event.NewSessionStateEvent(sessionID, string(from), string(to), reason))
	}
}

// appendOutput adds lines to the session's bounded output buffer.
func (p *Pool) appendOutput(sessionID, text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	s.record.Output = append(s.record.Output, strings.Split(text, "\n")...)
	if n := len(s.record.Output); n > p.cfg.OutputBufferLines {
		s.record.Output = append([]string(nil), s.record.Output[n-p.cfg.OutputBufferLines:]...)
	}
}

// healthLoop polls non-terminal sessions and fails any stuck past the
// liveness threshold.
func (p *Pool) healthLoop() {
	defer p.healthGroup.Done()

	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

func (p *Pool) checkHealth() {
	p.mu.RLock()
	var stale []string
	now := time.Now()
	for id, s := range p.sessions {
		switch s.record.State {
		case StateBusy, StateStarting:
			if now.Sub(s.record.UpdatedAt) > p.cfg.LivenessThreshold {
				stale = append(stale, id)
			}
		}
	}
	p.mu.RUnlock()

	for _, id := range stale {
		p.log.Warn("session unresponsive past liveness threshold", "session_id", id)
		if err := p.transition(id, StateFailed, "liveness threshold exceeded"); err != nil {
			p.log.Error("failed to reclaim stale session", "session_id", id, "error", err)
		}
	}
}

// persist durably writes a record. Caller holds p.mu for the record.
func (p *Pool) persist(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	return atomicWriteFile(filepath.Join(p.stateDir, rec.ID+".json"), data, 0644)
}

func cloneRecord(rec *Record) Record {
	out := *rec
	out.Output = append([]string(nil), rec.Output...)
	return out
}

// atomicWriteFile writes via temp file and rename so records are never
// observable half-written.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
