package lifecycle

import (
	"context"
	"errors"
	"testing"

	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/pricing"
)

func buyInstruction() Instruction {
	return Instruction{
		Symbol:    "AAPL",
		Action:    "buy",
		Quantity:  10,
		StopPct:   2.0,
		TargetPct: 5.0,
	}
}

func filledEntry(t *testing.T, mock *alpaca.MockClient, req alpaca.OrderRequest) *alpaca.Order {
	t.Helper()
	entry, err := mock.SubmitOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	mock.SetOrderStatus(entry.ID, alpaca.StatusFilled, 150.00)
	return mock.LookupOrder(entry.ID)
}

func TestDiscreteLegPlacerOrdering(t *testing.T) {
	mock := alpaca.NewMockClient()
	instr := buyInstruction()
	levels := pricing.Levels{Target: 157.50, Stop: 147.00}

	placer := NewDiscreteLegPlacer(mock, testLogger())
	entry := filledEntry(t, mock, placer.EntryRequest(instr, "run-1", levels))

	pair, err := placer.PlaceExits(context.Background(), "run-1", instr, entry, levels)
	if err != nil {
		t.Fatalf("PlaceExits failed: %v", err)
	}

	reqs := mock.SubmittedRequests()
	if len(reqs) != 3 {
		t.Fatalf("Expected entry plus two exit submissions, got %d", len(reqs))
	}

	target := reqs[1]
	if target.Type != alpaca.OrderTypeLimit {
		t.Errorf("Expected target submitted first as limit, got %s", target.Type)
	}
	if target.Side != alpaca.SideSell {
		t.Errorf("Expected exit side sell for a buy entry, got %s", target.Side)
	}
	if target.TimeInForce != "gtc" {
		t.Errorf("Expected GTC target, got %s", target.TimeInForce)
	}
	if target.LimitPrice == nil || *target.LimitPrice != 157.50 {
		t.Errorf("Expected limit 157.50, got %v", target.LimitPrice)
	}

	stop := reqs[2]
	if stop.Type != alpaca.OrderTypeStop {
		t.Errorf("Expected stop submitted second, got %s", stop.Type)
	}
	if stop.StopPrice == nil || *stop.StopPrice != 147.00 {
		t.Errorf("Expected stop 147.00, got %v", stop.StopPrice)
	}

	if pair.TargetOrderID == "" || pair.StopOrderID == "" {
		t.Errorf("Expected both leg ids recorded, got %+v", pair)
	}
	if pair.EntryOrderID != entry.ID {
		t.Errorf("Expected entry id %s, got %s", entry.ID, pair.EntryOrderID)
	}
}

func TestDiscreteLegPlacerSellEntryExitsBuy(t *testing.T) {
	mock := alpaca.NewMockClient()
	instr := Instruction{Symbol: "TSLA", Action: "sell", Quantity: 5, StopPct: 2.0, TargetPct: 5.0}
	levels := pricing.Levels{Target: 142.50, Stop: 153.00}

	placer := NewDiscreteLegPlacer(mock, testLogger())
	entry := filledEntry(t, mock, placer.EntryRequest(instr, "run-1", levels))

	if _, err := placer.PlaceExits(context.Background(), "run-1", instr, entry, levels); err != nil {
		t.Fatalf("PlaceExits failed: %v", err)
	}

	for _, req := range mock.SubmittedRequests()[1:] {
		if req.Side != alpaca.SideBuy {
			t.Errorf("Expected buy exit for a sell entry, got %s", req.Side)
		}
	}
}

// TestDiscreteLegPlacerTargetFailure verifies a failed target submission
// returns the failure with nothing to roll back.
func TestDiscreteLegPlacerTargetFailure(t *testing.T) {
	mock := alpaca.NewMockClient()
	instr := buyInstruction()
	levels := pricing.Levels{Target: 157.50, Stop: 147.00}

	placer := NewDiscreteLegPlacer(mock, testLogger())
	entry := filledEntry(t, mock, placer.EntryRequest(instr, "run-1", levels))

	mock.QueueSubmitError(&alpaca.APIError{StatusCode: 403, Body: `{"message":"insufficient qty"}`})

	_, err := placer.PlaceExits(context.Background(), "run-1", instr, entry, levels)
	if err == nil {
		t.Fatal("Expected error from failed target submission")
	}
	var partial *PartialExitError
	if errors.As(err, &partial) {
		t.Errorf("Expected plain error before any leg went in, got PartialExitError")
	}
}

// TestDiscreteLegPlacerStopFailureRollsBack verifies a failed stop submission
// cancels the lone target and still surfaces PartialExitError.
func TestDiscreteLegPlacerStopFailureRollsBack(t *testing.T) {
	mock := alpaca.NewMockClient()
	instr := buyInstruction()
	levels := pricing.Levels{Target: 157.50, Stop: 147.00}

	placer := NewDiscreteLegPlacer(mock, testLogger())
	entry := filledEntry(t, mock, placer.EntryRequest(instr, "run-1", levels))

	mock.QueueSubmitError(nil) // target goes in
	mock.QueueSubmitError(&alpaca.APIError{StatusCode: 500, Body: `{"message":"internal error"}`})

	_, err := placer.PlaceExits(context.Background(), "run-1", instr, entry, levels)

	var partial *PartialExitError
	if !errors.As(err, &partial) {
		t.Fatalf("Expected PartialExitError, got %v", err)
	}
	if partial.SurvivingLeg != "target" {
		t.Errorf("Expected surviving leg target, got %s", partial.SurvivingLeg)
	}
	if !partial.RolledBack {
		t.Error("Expected successful rollback of the lone target leg")
	}

	if target := mock.LookupOrder(partial.SurvivingOrderID); target.Status != alpaca.StatusCanceled {
		t.Errorf("Expected target canceled by rollback, got %s", target.Status)
	}
}

// TestDiscreteLegPlacerRollbackFailureReported verifies the error reports a
// live orphan when the rollback cancel itself fails.
func TestDiscreteLegPlacerRollbackFailureReported(t *testing.T) {
	mock := alpaca.NewMockClient()
	instr := buyInstruction()
	levels := pricing.Levels{Target: 157.50, Stop: 147.00}

	placer := NewDiscreteLegPlacer(mock, testLogger())
	entry := filledEntry(t, mock, placer.EntryRequest(instr, "run-1", levels))

	mock.QueueSubmitError(nil)
	mock.QueueSubmitError(&alpaca.APIError{StatusCode: 500, Body: `{"message":"internal error"}`})
	// Mock ids are sequential; the target leg is the submission after the
	// entry. Make its cancel fail so the rollback cannot complete.
	targetID := "mock-1002"
	mock.QueueCancelError(targetID, &alpaca.APIError{StatusCode: 503, Body: `{"message":"unavailable"}`})

	_, err := placer.PlaceExits(context.Background(), "run-1", instr, entry, levels)
	var partial *PartialExitError
	if !errors.As(err, &partial) {
		t.Fatalf("Expected PartialExitError, got %v", err)
	}
	if partial.RolledBack {
		t.Error("Expected rollback reported as failed")
	}
	if partial.SurvivingOrderID != targetID {
		t.Errorf("Expected surviving order %s, got %s", targetID, partial.SurvivingOrderID)
	}
	if target := mock.LookupOrder(targetID); target.Status != alpaca.StatusNew {
		t.Errorf("Expected orphaned target still live, got %s", target.Status)
	}
}

func TestBracketEntryRequestCarriesExits(t *testing.T) {
	instr := buyInstruction()
	levels := pricing.Levels{Target: 157.50, Stop: 147.00}

	placer := NewBracketEntryPlacer(testLogger())
	req := placer.EntryRequest(instr, "run-1", levels)

	if req.OrderClass != alpaca.ClassBracket {
		t.Errorf("Expected bracket order class, got %q", req.OrderClass)
	}
	if req.TakeProfit == nil || req.TakeProfit.LimitPrice != 157.50 {
		t.Errorf("Expected take-profit 157.50, got %+v", req.TakeProfit)
	}
	if req.StopLoss == nil || req.StopLoss.StopPrice != 147.00 {
		t.Errorf("Expected stop-loss 147.00, got %+v", req.StopLoss)
	}
}

func TestBracketPlaceExitsReadsLegs(t *testing.T) {
	mock := alpaca.NewMockClient()
	instr := buyInstruction()
	levels := pricing.Levels{Target: 157.50, Stop: 147.00}

	placer := NewBracketEntryPlacer(testLogger())
	entry := filledEntry(t, mock, placer.EntryRequest(instr, "run-1", levels))

	pair, err := placer.PlaceExits(context.Background(), "run-1", instr, entry, levels)
	if err != nil {
		t.Fatalf("PlaceExits failed: %v", err)
	}
	if pair.TargetOrderID == "" || pair.StopOrderID == "" {
		t.Fatalf("Expected both leg ids from broker legs, got %+v", pair)
	}
	if pair.TargetOrderID == pair.StopOrderID {
		t.Error("Expected distinct leg ids")
	}

	// No extra submissions beyond the entry itself.
	if reqs := mock.SubmittedRequests(); len(reqs) != 1 {
		t.Errorf("Expected a single bracket submission, got %d", len(reqs))
	}
}

func TestBracketPlaceExitsMissingLegs(t *testing.T) {
	placer := NewBracketEntryPlacer(testLogger())
	entry := &alpaca.Order{ID: "entry-1", Status: alpaca.StatusFilled}

	_, err := placer.PlaceExits(context.Background(), "run-1", buyInstruction(), entry, pricing.Levels{})
	if err == nil {
		t.Fatal("Expected error when broker response has no legs")
	}
}

func TestNewExitStrategySelection(t *testing.T) {
	mock := alpaca.NewMockClient()

	tests := []struct {
		capability Capability
		want       Capability
	}{
		{SubmitsDiscreteLegs, SubmitsDiscreteLegs},
		{SubmitsNativeBracket, SubmitsNativeBracket},
		{"", SubmitsDiscreteLegs},
	}
	for _, tt := range tests {
		strategy, err := NewExitStrategy(tt.capability, mock, testLogger())
		if err != nil {
			t.Fatalf("NewExitStrategy(%q) failed: %v", tt.capability, err)
		}
		if strategy.Capability() != tt.want {
			t.Errorf("NewExitStrategy(%q) = %s, want %s", tt.capability, strategy.Capability(), tt.want)
		}
	}

	if _, err := NewExitStrategy("nonsense", mock, testLogger()); err == nil {
		t.Error("Expected error for unknown capability")
	}
}
