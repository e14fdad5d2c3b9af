// Package store persists plans as versioned JSON records on the local
// filesystem. Every version of every plan is retained, so history stays
// queryable and any prior version can be restored by appending it as a new
// version.
//
// Layout under the base directory:
//
//	plans/<plan-id>/v0001.json
//	plans/<plan-id>/v0002.json
//	...
//
// Writes are atomic (temp file plus rename), versions are strictly
// increasing, and appends for the same plan ID are serialized. Unreadable
// records surface ErrCorruptRecord rather than being silently skipped.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/overseer/internal/event"
	"github.com/Iron-Ham/overseer/internal/plan"
)

// ErrCorruptRecord indicates a persisted plan version could not be decoded.
var ErrCorruptRecord = errors.New("corrupt plan record")

// ErrVersionConflict indicates an append raced with another writer and the
// version it produced already exists on disk.
var ErrVersionConflict = errors.New("plan version conflict")

// VersionSummary describes one entry in a plan's history.
type VersionSummary struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Phases    int       `json:"phases"`
	Tasks     int       `json:"tasks"`
	Summary   string    `json:"summary"`
}

// Mutation transforms a copy of the latest plan version into the next one.
// It must return an error to abandon the append; the store is left unchanged.
type Mutation func(p *plan.Plan) error

// Store is a file-backed versioned plan store. All methods are safe for
// concurrent use; appends are serialized per plan ID.
type Store struct {
	baseDir string
	bus     *event.Bus

	mu    sync.Mutex
	plans map[string]*planLock
}

// planLock serializes appends for one plan ID.
type planLock struct {
	mu sync.Mutex
}

// New creates a store rooted at baseDir, creating the directory if needed.
// The bus may be nil.
func New(baseDir string, bus *event.Bus) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "plans"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		bus:     bus,
		plans:   make(map[string]*planLock),
	}, nil
}

// Create persists a new plan as version 1. The plan must validate and must
// not already exist.
func (s *Store) Create(ctx context.Context, p *plan.Plan) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("invalid plan: %w", err)
	}

	lock := s.lockFor(p.ID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	dir := s.planDir(p.ID)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("plan %s already exists", p.ID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plan directory: %w", err)
	}

	stored := p.Clone()
	stored.Version = 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if err := s.writeVersion(stored); err != nil {
		return "", err
	}

	if s.bus != nil {
		s.bus.Publish(event.NewPlanVersionEvent(stored.ID, 1, "created"))
	}
	return stored.ID, nil
}

// Get returns the given version of a plan, or the latest when version <= 0.
// The returned plan is a snapshot; mutating it does not affect the store.
func (s *Store) Get(ctx context.Context, id string, version int) (*plan.Plan, error) {
	if version <= 0 {
		latest, err := s.latestVersion(id)
		if err != nil {
			return nil, err
		}
		version = latest
	}
	return s.readVersion(id, version)
}

// Append produces the next version of a plan by applying mutate to a copy of
// the latest version. Either the full new version is durably recorded and the
// counter advances by one, or the store is unchanged.
func (s *Store) Append(ctx context.Context, id string, mutate Mutation) (*plan.Plan, error) {
	lock := s.lockFor(id)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	latest, err := s.latestVersion(id)
	if err != nil {
		return nil, err
	}
	current, err := s.readVersion(id, latest)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Version = latest + 1
	next.CreatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("mutation produced invalid plan: %w", err)
	}

	if err := s.writeVersion(next); err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(event.NewPlanVersionEvent(id, next.Version, "appended"))
	}
	return next.Clone(), nil
}

// UpdateTaskStatus appends a new version with the task at (phase, index)
// moved to status. When the transition completes the last open task in its
// phase, the phase is stamped completed in the same version.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, phase, index int, status plan.TaskStatus) (*plan.Plan, error) {
	return s.Append(ctx, id, func(p *plan.Plan) error {
		if err := p.SetTaskStatus(phase, index, status); err != nil {
			return err
		}
		if status == plan.TaskCompleted && p.Phases[phase].Completed() && p.Phases[phase].CompletedAt == nil {
			now := time.Now()
			p.Phases[phase].CompletedAt = &now
		}
		return nil
	})
}

// Restore re-publishes a prior version as the newest one. The restored
// content gets a fresh version number; history is never rewritten.
func (s *Store) Restore(ctx context.Context, id string, version int) (*plan.Plan, error) {
	old, err := s.readVersion(id, version)
	if err != nil {
		return nil, err
	}
	return s.Append(ctx, id, func(p *plan.Plan) error {
		p.Overview = old.Overview
		p.Phases = old.Clone().Phases
		p.Decisions = old.Clone().Decisions
		return nil
	})
}

// History returns version summaries for a plan, oldest first.
func (s *Store) History(ctx context.Context, id string) ([]VersionSummary, error) {
	versions, err := s.listVersions(id)
	if err != nil {
		return nil, err
	}

	summaries := make([]VersionSummary, 0, len(versions))
	for _, v := range versions {
		p, err := s.readVersion(id, v)
		if err != nil {
			return nil, err
		}
		tasks := 0
		for _, ph := range p.Phases {
			tasks += len(ph.Tasks)
		}
		summaries = append(summaries, VersionSummary{
			Version:   p.Version,
			CreatedAt: p.CreatedAt,
			Phases:    len(p.Phases),
			Tasks:     tasks,
			Summary:   fmt.Sprintf("%d phases, %d tasks", len(p.Phases), tasks),
		})
	}
	return summaries, nil
}

// List returns the IDs of every stored plan, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "plans"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) lockFor(id string) *planLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.plans[id]
	if !ok {
		lock = &planLock{}
		s.plans[id] = lock
	}
	return lock
}

func (s *Store) planDir(id string) string {
	return filepath.Join(s.baseDir, "plans", id)
}

func (s *Store) versionPath(id string, version int) string {
	return filepath.Join(s.planDir(id), fmt.Sprintf("v%04d.json", version))
}

func (s *Store) listVersions(id string) ([]int, error) {
	entries, err := os.ReadDir(s.planDir(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", plan.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read plan directory: %w", err)
	}

	var versions []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(name, "v%04d.json", &v); err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", plan.ErrNotFound, id)
	}
	sort.Ints(versions)
	return versions, nil
}

func (s *Store) latestVersion(id string) (int, error) {
	versions, err := s.listVersions(id)
	if err != nil {
		return 0, err
	}
	return versions[len(versions)-1], nil
}

func (s *Store) readVersion(id string, version int) (*plan.Plan, error) {
	data, err := os.ReadFile(s.versionPath(id, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s version %d", plan.ErrNotFound, id, version)
		}
		return nil, fmt.Errorf("failed to read plan record: %w", err)
	}

	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s version %d: %v", ErrCorruptRecord, id, version, err)
	}
	if p.ID != id {
		return nil, fmt.Errorf("%w: %s version %d: ID mismatch (%s)", ErrCorruptRecord, id, version, p.ID)
	}
	return &p, nil
}

func (s *Store) writeVersion(p *plan.Plan) error {
	path := s.versionPath(p.ID, p.Version)

	// A version file must never be replaced once written.
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s version %d already exists", ErrVersionConflict, p.ID, p.Version)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return atomicWriteFile(path, data, 0644)
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place so the record is never observable half-written.
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
