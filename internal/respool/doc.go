// Package respool provides exclusive file-path locking for delegated tasks.
//
// When multiple agent sessions work a plan in parallel, two tasks must never
// edit the same file simultaneously. The respool package prevents this by
// maintaining an in-memory table of resource locks keyed by file path.
// A task acquires every resource it needs as a single all-or-nothing set at
// delegation time; a task that cannot obtain its full set obtains nothing.
// Because no task ever holds a partial set while waiting for more, circular
// wait is impossible and no deadlock detection is needed.
//
// # Architecture
//
// The [Pool] maintains a map of file path to [Lock]. Acquisition and release
// are evaluated inside one critical section, so two overlapping Acquire calls
// can never interleave. Lock and release events are published to the event
// bus for observability.
//
// Locks carry no timeout. They live exactly as long as the owning task is
// not terminal: the delegator releases them on completion or failure, and an
// operator may force-release the locks of a crashed task via [Pool.ForceRelease].
//
// # Basic Usage
//
//	pool := respool.NewPool(bus)
//
//	// Acquire the full set before delegating
//	if err := pool.Acquire("task-1", []string{"src/a.go", "src/b.go"}); err != nil {
//	    var conflict *respool.ConflictError
//	    if errors.As(err, &conflict) {
//	        // conflict.Conflicts lists each contested path and its holder
//	    }
//	}
//
//	// Release everything on terminal transition (idempotent)
//	pool.Release("task-1")
//
// # Thread Safety
//
// All [Pool] methods are safe for concurrent use via an internal sync.RWMutex.
package respool
