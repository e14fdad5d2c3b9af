package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrCorruptCheckpoint indicates a persisted checkpoint could not be
// decoded.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint record")

// Checkpoint is one durable snapshot of task progress. Checkpoints are
// append-only per task; the newest one is what a retry resumes from.
type Checkpoint struct {
	TaskID        string            `json:"task_id"`
	Seq           int               `json:"seq"`
	Timestamp     time.Time         `json:"timestamp"`
	State         map[string]string `json:"state,omitempty"`
	FilesModified []string          `json:"files_modified,omitempty"`
	OutputSummary string            `json:"output_summary,omitempty"`
}

// CheckpointStore persists checkpoints as one JSON file each under
// checkpoints/<task-id>/. Safe for concurrent use.
type CheckpointStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewCheckpointStore creates a store rooted at stateDir.
func NewCheckpointStore(stateDir string) (*CheckpointStore, error) {
	dir := filepath.Join(stateDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &CheckpointStore{baseDir: dir}, nil
}

// Save appends a checkpoint for a task, assigning the next sequence number.
func (cs *CheckpointStore) Save(taskID string, state map[string]string, filesModified []string, summary string) (*Checkpoint, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	dir := filepath.Join(cs.baseDir, taskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create task checkpoint directory: %w", err)
	}

	seqs, err := cs.listSeqs(taskID)
	if err != nil {
		return nil, err
	}
	next := 1
	if len(seqs) > 0 {
		next = seqs[len(seqs)-1] + 1
	}

	cp := &Checkpoint{
		TaskID:        taskID,
		Seq:           next,
		Timestamp:     time.Now(),
		State:         state,
		FilesModified: filesModified,
		OutputSummary: summary,
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cp-%04d.json", next))
	if err := os.WriteFile(path+".tmp", data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return nil, fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return cp, nil
}

// List returns every checkpoint for a task, oldest first.
func (cs *CheckpointStore) List(taskID string) ([]*Checkpoint, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	seqs, err := cs.listSeqs(taskID)
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(seqs))
	for _, seq := range seqs {
		cp, err := cs.read(taskID, seq)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Last returns the newest checkpoint for a task, or nil when none exist.
func (cs *CheckpointStore) Last(taskID string) (*Checkpoint, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	seqs, err := cs.listSeqs(taskID)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, nil
	}
	return cs.read(taskID, seqs[len(seqs)-1])
}

func (cs *CheckpointStore) listSeqs(taskID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(cs.baseDir, taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	var seqs []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var seq int
		if _, err := fmt.Sscanf(name, "cp-%04d.json", &seq); err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}

func (cs *CheckpointStore) read(taskID string, seq int) (*Checkpoint, error) {
	path := filepath.Join(cs.baseDir, taskID, fmt.Sprintf("cp-%04d.json", seq))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s seq %d: %v", ErrCorruptCheckpoint, taskID, seq, err)
	}
	return &cp, nil
}
