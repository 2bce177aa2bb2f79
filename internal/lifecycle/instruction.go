package lifecycle

import (
	"fmt"
	"strings"

	"alpaca-trading-bot/internal/alpaca"
)

// Instruction is the caller's trading request. Field names match the intake
// payload: symbol, action (buy/sell), quantity, and the stop-loss and
// profit-target percentages applied to the reference price. Immutable once
// validated.
type Instruction struct {
	Symbol    string  `json:"symbol_id" binding:"required"`
	Action    string  `json:"action" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required"`
	StopPct   float64 `json:"sl_percentage"`
	TargetPct float64 `json:"target_percentage"`
}

// Normalized returns a copy with the symbol upper-cased and the action
// lower-cased.
func (in Instruction) Normalized() Instruction {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	return in
}

// Side converts the action to an order side. Only meaningful after Validate.
func (in Instruction) Side() alpaca.Side {
	return alpaca.Side(in.Action)
}

// Validate checks the instruction before any network call is made.
func (in Instruction) Validate() error {
	if in.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInstruction)
	}
	if !in.Side().Valid() {
		return fmt.Errorf("%w: action must be buy or sell, got %q", ErrInvalidInstruction, in.Action)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidInstruction, in.Quantity)
	}
	if in.TargetPct < 0 {
		return fmt.Errorf("%w: target_percentage must not be negative, got %v", ErrInvalidInstruction, in.TargetPct)
	}
	if in.StopPct < 0 {
		return fmt.Errorf("%w: sl_percentage must not be negative, got %v", ErrInvalidInstruction, in.StopPct)
	}
	return nil
}
