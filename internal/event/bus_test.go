package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id := bus.Subscribe(TypeMarkerFinished, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeMarkerFinished, func(e Event) {
		received = e
	})

	bus.Publish(NewMarkerFinishedEvent("K00001", false, "align", 2*time.Second))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	done, ok := received.(MarkerFinishedEvent)
	if !ok {
		t.Fatalf("received %T, want MarkerFinishedEvent", received)
	}
	if done.Marker != "K00001" || done.Success || done.Stage != "align" {
		t.Errorf("unexpected event payload: %+v", done)
	}
	if done.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus(nil)

	called := false
	bus.Subscribe(TypeConsensusBuilt, func(e Event) { called = true })
	bus.Publish(NewGenomeSearchedEvent("ecoli", true, 12, false, ""))

	if called {
		t.Error("handler for another event type should not be called")
	}
}

func TestBus_NilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(NewStateChangedEvent("run", "LOADED", "SEARCHED"))
}

func TestBus_SubscribeAllOrdering(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypeStateChanged, func(e Event) { order = append(order, "specific") })

	bus.Publish(NewStateChangedEvent("run", "LOADED", "SEARCHED"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("order = %v, want [specific wildcard]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	first := bus.Subscribe(TypeStateChanged, func(e Event) { calls++ })
	bus.Subscribe(TypeStateChanged, func(e Event) { calls += 10 })

	if !bus.Unsubscribe(first) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	if bus.Unsubscribe(first) {
		t.Error("second Unsubscribe should report false")
	}
	if bus.Unsubscribe("sub-missing") {
		t.Error("unknown ID should report false")
	}

	bus.Publish(NewStateChangedEvent("run", "SEARCHED", "AGGREGATED"))
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypeStateChanged, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus(nil)

	reached := false
	bus.Subscribe(TypeConsensusBuilt, func(e Event) { panic("boom") })
	bus.Subscribe(TypeConsensusBuilt, func(e Event) { reached = true })

	bus.Publish(NewConsensusBuiltEvent("consensus", 8, "/out/species_tree.nwk"))

	if !reached {
		t.Error("handlers after a panicking handler should still run")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var count atomic.Int64
	bus.SubscribeAll(func(e Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewGenomeSearchedEvent("g", true, 1, false, ""))
			}
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 800 {
		t.Errorf("handler called %d times, want 800", got)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := bus.Subscribe(TypeStateChanged, func(e Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription ID %q", id)
		}
		seen[id] = true
	}
}
