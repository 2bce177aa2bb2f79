package events

import (
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("Event never delivered")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventEntryFilled, func(e Event) { received <- e })

	bus.PublishEntryFilled("run-1", "mock-1001", "AAPL", 150.00)

	e := waitEvent(t, received)
	if e.Type != EventEntryFilled {
		t.Errorf("Expected ENTRY_FILLED, got %s", e.Type)
	}
	if e.Data["symbol"] != "AAPL" || e.Data["avg_price"] != 150.00 {
		t.Errorf("Unexpected payload: %+v", e.Data)
	}
	if e.Timestamp.IsZero() {
		t.Error("Expected timestamp set on publish")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventTargetWon, func(e Event) { received <- e })

	bus.PublishEntryFilled("run-1", "mock-1001", "AAPL", 150.00)

	select {
	case e := <-received:
		t.Fatalf("Unexpected delivery: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 2)
	bus.SubscribeAll(func(e Event) { received <- e })

	bus.PublishOrderPlaced("run-1", "mock-1001", "AAPL", "market", "buy", 10)
	bus.PublishSupervisionOutcome(EventStopWon, "run-1", "AAPL", "mock-1003", "mock-1002")

	seen := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		seen[waitEvent(t, received).Type] = true
	}
	if !seen[EventOrderPlaced] || !seen[EventStopWon] {
		t.Errorf("Expected both event types, got %v", seen)
	}
}
