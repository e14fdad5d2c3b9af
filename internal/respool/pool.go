package respool

import (
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/overseer/internal/event"
)

// Pool tracks exclusive locks on file paths. All methods are safe for
// concurrent use.
type Pool struct {
	mu    sync.RWMutex
	locks map[string]*Lock // resource path -> lock
	bus   *event.Bus
}

// NewPool creates an empty pool. The bus may be nil, in which case no
// events are published.
func NewPool(bus *event.Bus) *Pool {
	return &Pool{
		locks: make(map[string]*Lock),
		bus:   bus,
	}
}

// Acquire locks every resource for taskID, or none of them. If any
// resource is held by a different task the whole request fails with a
// *ConflictError listing every contested resource and its holder.
//
// Resources already held by taskID itself are not conflicts; re-acquiring
// them is a no-op. Duplicate entries in resources are collapsed.
func (p *Pool) Acquire(taskID string, resources []string) error {
	p.mu.Lock()

	// Check the full set before touching anything so a partial failure
	// never leaves stray locks behind.
	var conflicts []Conflict
	seen := make(map[string]bool, len(resources))
	for _, res := range resources {
		if seen[res] {
			continue
		}
		seen[res] = true
		if held, ok := p.locks[res]; ok && held.TaskID != taskID {
			conflicts = append(conflicts, Conflict{Resource: res, HeldBy: held.TaskID})
		}
	}

	if len(conflicts) > 0 {
		p.mu.Unlock()
		sort.Slice(conflicts, func(i, j int) bool {
			return conflicts[i].Resource < conflicts[j].Resource
		})
		return &ConflictError{TaskID: taskID, Conflicts: conflicts}
	}

	now := time.Now()
	var acquired []string
	for res := range seen {
		if _, ok := p.locks[res]; ok {
			continue // already held by taskID
		}
		p.locks[res] = &Lock{TaskID: taskID, Resource: res, AcquiredAt: now}
		acquired = append(acquired, res)
	}
	p.mu.Unlock()

	if p.bus != nil && len(acquired) > 0 {
		sort.Strings(acquired)
		p.bus.Publish(event.NewLockAcquiredEvent(taskID, acquired))
	}
	return nil
}

// Release drops every lock held by taskID. Releasing a task that holds
// nothing is a no-op.
func (p *Pool) Release(taskID string) {
	p.mu.Lock()
	var released []string
	for res, lock := range p.locks {
		if lock.TaskID == taskID {
			delete(p.locks, res)
			released = append(released, res)
		}
	}
	p.mu.Unlock()

	if p.bus != nil && len(released) > 0 {
		sort.Strings(released)
		p.bus.Publish(event.NewLockReleasedEvent(taskID, released, false))
	}
}

// ForceRelease drops the lock on a single resource regardless of holder.
// It reports whether a lock existed. Intended for operator intervention
// when a task has died without releasing its claims.
func (p *Pool) ForceRelease(resource string) bool {
	p.mu.Lock()
	lock, ok := p.locks[resource]
	if ok {
		delete(p.locks, resource)
	}
	p.mu.Unlock()

	if ok && p.bus != nil {
		p.bus.Publish(event.NewLockReleasedEvent(lock.TaskID, []string{resource}, true))
	}
	return ok
}

// Holder returns the task holding resource, or "" if it is unlocked.
func (p *Pool) Holder(resource string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if lock, ok := p.locks[resource]; ok {
		return lock.TaskID
	}
	return ""
}

// TaskResources returns the sorted resources currently held by taskID.
func (p *Pool) TaskResources(taskID string) []string {
	p.mu.RLock()
	var out []string
	for res, lock := range p.locks {
		if lock.TaskID == taskID {
			out = append(out, res)
		}
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Locks returns a snapshot of every active lock.
func (p *Pool) Locks() []Lock {
	p.mu.RLock()
	out := make([]Lock, 0, len(p.locks))
	for _, lock := range p.locks {
		out = append(out, *lock)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}
