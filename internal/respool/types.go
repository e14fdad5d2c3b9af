package respool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrConflict is returned when any requested resource is already locked by
// another task. Use errors.As to recover the *ConflictError detail.
var ErrConflict = errors.New("resource already locked")

// Lock represents an exclusive claim on a file path.
type Lock struct {
	TaskID     string    // Task that owns the lock
	Resource   string    // Locked file path
	AcquiredAt time.Time // When the lock was established
}

// Conflict identifies one contested resource and its current holder.
type Conflict struct {
	Resource string // Contested file path
	HeldBy   string // Task currently holding it
}

// ConflictError reports the full set of resources that blocked an Acquire.
// It wraps ErrConflict so callers can match with errors.Is.
type ConflictError struct {
	TaskID    string     // Task that attempted the acquisition
	Conflicts []Conflict // Every contested resource, sorted by path
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s (held by %s)", c.Resource, c.HeldBy)
	}
	return fmt.Sprintf("resource already locked: %s", strings.Join(parts, ", "))
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Resources returns the contested paths, sorted.
func (e *ConflictError) Resources() []string {
	out := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		out[i] = c.Resource
	}
	sort.Strings(out)
	return out
}
