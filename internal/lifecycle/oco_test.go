package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/events"
	"alpaca-trading-bot/internal/pricing"
)

func placeExitLegs(t *testing.T, mock *alpaca.MockClient) (string, string) {
	t.Helper()

	limit := 157.50
	target, err := mock.SubmitOrder(context.Background(), alpaca.OrderRequest{
		Symbol:      "AAPL",
		Qty:         10,
		Side:        alpaca.SideSell,
		Type:        alpaca.OrderTypeLimit,
		TimeInForce: "gtc",
		LimitPrice:  &limit,
	})
	if err != nil {
		t.Fatalf("SubmitOrder target failed: %v", err)
	}

	stopAt := 147.00
	stop, err := mock.SubmitOrder(context.Background(), alpaca.OrderRequest{
		Symbol:      "AAPL",
		Qty:         10,
		Side:        alpaca.SideSell,
		Type:        alpaca.OrderTypeStop,
		TimeInForce: "gtc",
		StopPrice:   &stopAt,
	})
	if err != nil {
		t.Fatalf("SubmitOrder stop failed: %v", err)
	}

	return target.ID, stop.ID
}

func testPair(targetID, stopID string) ExitPair {
	return ExitPair{
		RunID:         "run-1",
		Symbol:        "AAPL",
		Qty:           10,
		EntryOrderID:  "entry-1",
		TargetOrderID: targetID,
		StopOrderID:   stopID,
		Levels:        pricing.Levels{Target: 157.50, Stop: 147.00},
	}
}

func fastSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Interval:    time.Millisecond,
		MaxPolls:    200,
		MaxDuration: 5 * time.Second,
		MaxFailures: 2,
	}
}

func TestSupervisorTargetWins(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)
	mock.SetOrderStatus(targetID, alpaca.StatusFilled, 157.50)

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), fastSupervisorConfig())

	state := sup.Run(context.Background())
	if state != StateTargetWon {
		t.Fatalf("Expected target_won, got %s", state)
	}

	if stop := mock.LookupOrder(stopID); stop.Status != alpaca.StatusCanceled {
		t.Errorf("Expected stop leg canceled, got %s", stop.Status)
	}
	if calls := mock.CancelCalls(stopID); calls != 1 {
		t.Errorf("Expected 1 cancel of stop leg, got %d", calls)
	}
	if calls := mock.CancelCalls(targetID); calls != 0 {
		t.Errorf("Expected winning leg untouched, got %d cancels", calls)
	}

	snap := sup.Snapshot()
	if snap.WinnerOrderID != targetID {
		t.Errorf("Expected winner %s, got %s", targetID, snap.WinnerOrderID)
	}
}

func TestSupervisorStopWins(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)
	mock.SetOrderStatus(stopID, alpaca.StatusFilled, 146.90)

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), fastSupervisorConfig())

	state := sup.Run(context.Background())
	if state != StateStopWon {
		t.Fatalf("Expected stop_won, got %s", state)
	}
	if target := mock.LookupOrder(targetID); target.Status != alpaca.StatusCanceled {
		t.Errorf("Expected target leg canceled, got %s", target.Status)
	}
}

// TestSupervisorBothFilledTargetWins verifies the deterministic tie-break:
// when one tick observes both legs filled, the target is declared the winner.
func TestSupervisorBothFilledTargetWins(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)
	mock.SetOrderStatus(targetID, alpaca.StatusFilled, 157.50)
	mock.SetOrderStatus(stopID, alpaca.StatusFilled, 147.00)

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), fastSupervisorConfig())

	state := sup.Run(context.Background())
	if state != StateTargetWon {
		t.Fatalf("Expected target_won tie-break, got %s", state)
	}
	// Cancelling the already-filled sibling is terminal and must not change
	// the outcome.
	if snap := sup.Snapshot(); snap.State != StateTargetWon || snap.WinnerOrderID != targetID {
		t.Errorf("Outcome altered by sibling cancel: %+v", snap)
	}
}

// TestSupervisorSiblingCancelIdempotent verifies a sibling that is already
// terminal does not fail settlement.
func TestSupervisorSiblingCancelIdempotent(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)
	mock.SetOrderStatus(targetID, alpaca.StatusFilled, 157.50)
	mock.SetOrderStatus(stopID, alpaca.StatusCanceled, 0)

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), fastSupervisorConfig())

	state := sup.Run(context.Background())
	if state != StateTargetWon {
		t.Fatalf("Expected target_won, got %s", state)
	}
}

func TestSupervisorAbandonsOnPollBudget(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)

	cfg := fastSupervisorConfig()
	cfg.MaxPolls = 3

	bus := events.NewEventBus()
	abandoned := make(chan events.Event, 1)
	bus.Subscribe(events.EventSupervisionAbandoned, func(e events.Event) { abandoned <- e })

	sup := NewOcoSupervisor(mock, bus, testLogger(), testPair(targetID, stopID), cfg)

	state := sup.Run(context.Background())
	if state != StateAbandoned {
		t.Fatalf("Expected abandoned, got %s", state)
	}
	if calls := mock.GetOrderCalls(targetID); calls != 3 {
		t.Errorf("Expected 3 polls before abandoning, got %d", calls)
	}

	// Legs stay live for manual remediation.
	if target := mock.LookupOrder(targetID); target.Status != alpaca.StatusNew {
		t.Errorf("Expected target leg left live, got %s", target.Status)
	}
	if stop := mock.LookupOrder(stopID); stop.Status != alpaca.StatusNew {
		t.Errorf("Expected stop leg left live, got %s", stop.Status)
	}

	select {
	case <-abandoned:
	case <-time.After(time.Second):
		t.Error("Expected SUPERVISION_ABANDONED event")
	}
}

func TestSupervisorAbandonsOnConsecutiveFailures(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)

	for i := 0; i < 5; i++ {
		mock.QueueGetError(targetID, fmt.Errorf("%w: gateway timeout", alpaca.ErrUnavailable))
	}

	cfg := fastSupervisorConfig()
	cfg.MaxFailures = 2

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), cfg)

	state := sup.Run(context.Background())
	if state != StateAbandoned {
		t.Fatalf("Expected abandoned after repeated transport failures, got %s", state)
	}
}

// TestSupervisorFailuresResetOnSuccess verifies the failure counter is
// consecutive, not cumulative.
func TestSupervisorFailuresResetOnSuccess(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)

	// Failures interleaved with successes never breach a budget of 2.
	mock.QueueGetError(targetID, fmt.Errorf("%w: reset by peer", alpaca.ErrUnavailable))
	mock.QueueGetError(targetID, nil)
	mock.QueueGetError(targetID, fmt.Errorf("%w: reset by peer", alpaca.ErrUnavailable))
	mock.QueueGetError(targetID, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		mock.SetOrderStatus(stopID, alpaca.StatusFilled, 147.00)
	}()

	cfg := fastSupervisorConfig()
	cfg.MaxFailures = 2

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), cfg)

	state := sup.Run(context.Background())
	if state != StateStopWon {
		t.Fatalf("Expected stop_won, got %s", state)
	}
}

// TestSupervisorShutdownLeavesLegsLive verifies external cancellation stops
// polling without touching either order at the broker.
func TestSupervisorShutdownLeavesLegsLive(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)

	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastSupervisorConfig()
	cfg.Interval = 10 * time.Millisecond

	sup := NewOcoSupervisor(mock, events.NewEventBus(), testLogger(), testPair(targetID, stopID), cfg)

	done := make(chan SupervisorState, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case state := <-done:
		if state != StateCancelled {
			t.Fatalf("Expected cancelled, got %s", state)
		}
	case <-time.After(time.Second):
		t.Fatal("Supervisor did not stop after context cancellation")
	}

	if calls := mock.CancelCalls(targetID); calls != 0 {
		t.Errorf("Expected target leg untouched on shutdown, got %d cancels", calls)
	}
	if calls := mock.CancelCalls(stopID); calls != 0 {
		t.Errorf("Expected stop leg untouched on shutdown, got %d cancels", calls)
	}
}

func TestSupervisorPublishesOutcomeEvent(t *testing.T) {
	mock := alpaca.NewMockClient()
	targetID, stopID := placeExitLegs(t, mock)
	mock.SetOrderStatus(stopID, alpaca.StatusFilled, 147.00)

	bus := events.NewEventBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventStopWon, func(e events.Event) { received <- e })

	sup := NewOcoSupervisor(mock, bus, testLogger(), testPair(targetID, stopID), fastSupervisorConfig())
	sup.Run(context.Background())

	select {
	case event := <-received:
		if event.Data["winner_order_id"] != stopID {
			t.Errorf("Expected winner %s in event, got %v", stopID, event.Data["winner_order_id"])
		}
		if event.Data["loser_order_id"] != targetID {
			t.Errorf("Expected loser %s in event, got %v", targetID, event.Data["loser_order_id"])
		}
	case <-time.After(time.Second):
		t.Error("Expected STOP_WON event")
	}
}
