package event

import (
	"sync"
	"testing"
)

func TestBusPublishDelivers(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe("lock.acquired", func(e Event) {
		received = e
	})

	bus.Publish(NewLockAcquiredEvent("task-1", []string{"src/a.go"}))

	if received == nil {
		t.Fatal("handler should have received the event")
	}
	lae, ok := received.(LockAcquiredEvent)
	if !ok {
		t.Fatalf("event type = %T, want LockAcquiredEvent", received)
	}
	if lae.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want %q", lae.TaskID, "task-1")
	}
}

func TestBusPublishNonMatching(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("session.state_changed", func(e Event) {
		t.Error("handler should not be called for a non-matching event type")
	})

	bus.Publish(newBaseEvent("plan.version_appended"))
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewPlanVersionEvent("plan-1", 2, "task status update"))
	bus.Publish(NewTaskEscalatedEvent("task-1", 5, "tests failing"))

	want := []string{"plan.version_appended", "task.escalated"}
	if len(types) != len(want) {
		t.Fatalf("got %d events, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("checkpoint.saved", func(e Event) {
		called = true
	})

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for an existing subscription")
	}
	if bus.Unsubscribe("no-such-id") {
		t.Error("Unsubscribe should return false for an unknown ID")
	}

	bus.Publish(NewCheckpointSavedEvent("task-1", nil))
	if called {
		t.Error("handler should not be called after unsubscribing")
	}
}

func TestBusHandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("task.escalated", func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe("task.escalated", func(e Event) {
		calls++
	})

	bus.Publish(NewTaskEscalatedEvent("task-1", 5, "boom"))

	if calls != 2 {
		t.Errorf("expected both handlers to run despite panic, got %d calls", calls)
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe("lock.released", func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(NewLockReleasedEvent("task-1", nil, false))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("calls = %d, want 100", calls)
	}
}

func TestBusUniqueSubscriptionIDs(t *testing.T) {
	bus := NewBus()

	ids := make(map[string]bool)
	for range 100 {
		id := bus.Subscribe("permission.routed", func(e Event) {})
		if ids[id] {
			t.Fatalf("duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}
