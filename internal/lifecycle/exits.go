package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/pricing"
)

// Capability identifies how a broker target expresses the OCO pair.
type Capability string

const (
	// SubmitsDiscreteLegs places two separate exit orders after the entry
	// fills; this process enforces the one-cancels-other invariant.
	SubmitsDiscreteLegs Capability = "discrete_legs"
	// SubmitsNativeBracket attaches both exits to the entry submission; the
	// broker enforces the invariant and the legs surface on the entry order.
	SubmitsNativeBracket Capability = "native_bracket"
)

// ExitPair is the pair of sibling exit orders protecting one filled entry.
// Exactly one of target/stop ends filled; the other ends canceled or
// rejected before filling.
type ExitPair struct {
	RunID         string         `json:"run_id"`
	Symbol        string         `json:"symbol"`
	Qty           int            `json:"qty"`
	EntryOrderID  string         `json:"entry_order_id"`
	TargetOrderID string         `json:"target_order_id"`
	StopOrderID   string         `json:"stop_order_id"`
	Levels        pricing.Levels `json:"levels"`
}

// ExitStrategy abstracts the two OCO variants behind one interface so either
// broker capability can be targeted without duplicating the supervision state
// machine.
type ExitStrategy interface {
	Capability() Capability
	// EntryRequest builds the entry order submission for an instruction.
	EntryRequest(instr Instruction, clientOrderID string, levels pricing.Levels) alpaca.OrderRequest
	// PlaceExits returns the exit pair for a filled entry, submitting leg
	// orders when the capability requires it.
	PlaceExits(ctx context.Context, runID string, instr Instruction, entry *alpaca.Order, levels pricing.Levels) (*ExitPair, error)
}

// NewExitStrategy selects the strategy implementation for a capability.
func NewExitStrategy(capability Capability, broker alpaca.Broker, logger zerolog.Logger) (ExitStrategy, error) {
	switch capability {
	case SubmitsDiscreteLegs, "":
		return NewDiscreteLegPlacer(broker, logger), nil
	case SubmitsNativeBracket:
		return NewBracketEntryPlacer(logger), nil
	default:
		return nil, fmt.Errorf("unknown exit strategy %q", capability)
	}
}

// DiscreteLegPlacer submits the profit-target and stop-loss orders as two
// separate GTC orders on the opposite side of the entry, target first. If the
// stop submission fails after the target went in, it rolls the target back
// and reports a PartialExitError either way so the caller can remediate.
type DiscreteLegPlacer struct {
	broker alpaca.Broker
	logger zerolog.Logger
}

func NewDiscreteLegPlacer(broker alpaca.Broker, logger zerolog.Logger) *DiscreteLegPlacer {
	return &DiscreteLegPlacer{
		broker: broker,
		logger: logger.With().Str("component", "DiscreteLegPlacer").Logger(),
	}
}

func (p *DiscreteLegPlacer) Capability() Capability { return SubmitsDiscreteLegs }

func (p *DiscreteLegPlacer) EntryRequest(instr Instruction, clientOrderID string, _ pricing.Levels) alpaca.OrderRequest {
	return alpaca.OrderRequest{
		Symbol:        instr.Symbol,
		Qty:           instr.Quantity,
		Side:          instr.Side(),
		Type:          alpaca.OrderTypeMarket,
		TimeInForce:   "gtc",
		ClientOrderID: clientOrderID,
	}
}

func (p *DiscreteLegPlacer) PlaceExits(ctx context.Context, runID string, instr Instruction, entry *alpaca.Order, levels pricing.Levels) (*ExitPair, error) {
	exitSide := instr.Side().Opposite()

	targetPrice := levels.Target
	target, err := p.broker.SubmitOrder(ctx, alpaca.OrderRequest{
		Symbol:      instr.Symbol,
		Qty:         instr.Quantity,
		Side:        exitSide,
		Type:        alpaca.OrderTypeLimit,
		TimeInForce: "gtc",
		LimitPrice:  &targetPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("placing target order: %w", err)
	}

	p.logger.Info().
		Str("run_id", runID).
		Str("order_id", target.ID).
		Float64("limit_price", targetPrice).
		Msg("Target order placed")

	stopPrice := levels.Stop
	stop, err := p.broker.SubmitOrder(ctx, alpaca.OrderRequest{
		Symbol:      instr.Symbol,
		Qty:         instr.Quantity,
		Side:        exitSide,
		Type:        alpaca.OrderTypeStop,
		TimeInForce: "gtc",
		StopPrice:   &stopPrice,
	})
	if err != nil {
		return nil, p.rollbackTarget(ctx, runID, target.ID, err)
	}

	p.logger.Info().
		Str("run_id", runID).
		Str("order_id", stop.ID).
		Float64("stop_price", stopPrice).
		Msg("Stop-loss order placed")

	return &ExitPair{
		RunID:         runID,
		Symbol:        instr.Symbol,
		Qty:           instr.Quantity,
		EntryOrderID:  entry.ID,
		TargetOrderID: target.ID,
		StopOrderID:   stop.ID,
		Levels:        levels,
	}, nil
}

// rollbackTarget cancels the lone target leg after a failed stop submission.
// The position must never look hedged when it is not, so the failure is
// reported even when the rollback succeeds.
func (p *DiscreteLegPlacer) rollbackTarget(ctx context.Context, runID, targetOrderID string, cause error) error {
	rolledBack := true
	if err := p.broker.CancelOrder(ctx, targetOrderID); err != nil && !errors.Is(err, alpaca.ErrOrderTerminal) {
		rolledBack = false
		p.logger.Error().
			Err(err).
			Str("run_id", runID).
			Str("order_id", targetOrderID).
			Msg("Rollback of lone target leg failed, order still live")
	}

	return &PartialExitError{
		SurvivingLeg:     "target",
		SurvivingOrderID: targetOrderID,
		RolledBack:       rolledBack,
		Err:              cause,
	}
}

// BracketEntryPlacer targets brokers with native bracket support: the entry
// submission carries the take-profit and stop-loss blocks and the broker
// creates both legs atomically. PlaceExits only reads the leg ids off the
// entry order.
type BracketEntryPlacer struct {
	logger zerolog.Logger
}

func NewBracketEntryPlacer(logger zerolog.Logger) *BracketEntryPlacer {
	return &BracketEntryPlacer{
		logger: logger.With().Str("component", "BracketEntryPlacer").Logger(),
	}
}

func (p *BracketEntryPlacer) Capability() Capability { return SubmitsNativeBracket }

func (p *BracketEntryPlacer) EntryRequest(instr Instruction, clientOrderID string, levels pricing.Levels) alpaca.OrderRequest {
	return alpaca.OrderRequest{
		Symbol:        instr.Symbol,
		Qty:           instr.Quantity,
		Side:          instr.Side(),
		Type:          alpaca.OrderTypeMarket,
		TimeInForce:   "gtc",
		ClientOrderID: clientOrderID,
		OrderClass:    alpaca.ClassBracket,
		TakeProfit:    &alpaca.TakeProfitSpec{LimitPrice: levels.Target},
		StopLoss:      &alpaca.StopLossSpec{StopPrice: levels.Stop},
	}
}

func (p *BracketEntryPlacer) PlaceExits(_ context.Context, runID string, instr Instruction, entry *alpaca.Order, levels pricing.Levels) (*ExitPair, error) {
	var targetID, stopID string
	for i := range entry.Legs {
		leg := &entry.Legs[i]
		switch leg.Type {
		case alpaca.OrderTypeLimit:
			targetID = leg.ID
		case alpaca.OrderTypeStop:
			stopID = leg.ID
		}
	}

	if targetID == "" || stopID == "" {
		return nil, fmt.Errorf("bracket entry %s missing exit legs in broker response", entry.ID)
	}

	p.logger.Info().
		Str("run_id", runID).
		Str("target_order_id", targetID).
		Str("stop_order_id", stopID).
		Msg("Bracket exit legs attached by broker")

	return &ExitPair{
		RunID:         runID,
		Symbol:        instr.Symbol,
		Qty:           instr.Quantity,
		EntryOrderID:  entry.ID,
		TargetOrderID: targetID,
		StopOrderID:   stopID,
		Levels:        levels,
	}, nil
}
