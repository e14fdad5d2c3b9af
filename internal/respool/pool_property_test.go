package respool

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// Exercises random acquire/release sequences against a naive model and
// checks that no resource is ever held by two tasks and that a failed
// acquire never changes pool state.
func TestPoolExclusivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := NewPool(nil)
		model := make(map[string]string) // resource -> task

		taskGen := rapid.SampledFrom([]string{"t1", "t2", "t3", "t4"})
		resGen := rapid.SampledFrom([]string{"a.go", "b.go", "c.go", "d.go", "e.go"})

		t.Repeat(map[string]func(*rapid.T){
			"acquire": func(t *rapid.T) {
				taskID := taskGen.Draw(t, "task")
				resources := rapid.SliceOfN(resGen, 1, 3).Draw(t, "resources")

				conflicted := false
				for _, res := range resources {
					if holder, ok := model[res]; ok && holder != taskID {
						conflicted = true
					}
				}

				err := pool.Acquire(taskID, resources)
				if conflicted {
					if !errors.Is(err, ErrConflict) {
						t.Fatalf("expected conflict for %s acquiring %v, got %v", taskID, resources, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error for %s acquiring %v: %v", taskID, resources, err)
				}
				for _, res := range resources {
					model[res] = taskID
				}
			},
			"release": func(t *rapid.T) {
				taskID := taskGen.Draw(t, "task")
				pool.Release(taskID)
				for res, holder := range model {
					if holder == taskID {
						delete(model, res)
					}
				}
			},
			"forceRelease": func(t *rapid.T) {
				res := resGen.Draw(t, "resource")
				_, held := model[res]
				if got := pool.ForceRelease(res); got != held {
					t.Fatalf("ForceRelease(%s) = %v, model says %v", res, got, held)
				}
				delete(model, res)
			},
			"": func(t *rapid.T) {
				// Pool state must agree with the model exactly.
				locks := pool.Locks()
				if len(locks) != len(model) {
					t.Fatalf("pool has %d locks, model has %d", len(locks), len(model))
				}
				for _, lock := range locks {
					if model[lock.Resource] != lock.TaskID {
						t.Fatalf("resource %s held by %s, model says %s",
							lock.Resource, lock.TaskID, model[lock.Resource])
					}
				}
			},
		})
	})
}
