// Package pricing derives protective exit price levels from a reference price.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"alpaca-trading-bot/internal/alpaca"
)

var (
	ErrInvalidReference = errors.New("reference price must be positive")
	ErrNegativePercent  = errors.New("percentage must not be negative")
	ErrInvalidDirection = errors.New("direction must be buy or sell")
)

// Levels holds the derived exit prices, rounded to cents.
type Levels struct {
	Target float64 `json:"target"`
	Stop   float64 `json:"stop"`
}

var oneHundred = decimal.NewFromInt(100)

// ComputeLevels maps (reference price, direction, target %, stop %) to the
// profit-target and stop-loss prices. For a buy entry the target sits above
// the reference and the stop below; for a sell entry the two are mirrored.
// Prices are rounded half-up to 2 decimals (cent granularity).
func ComputeLevels(reference float64, side alpaca.Side, targetPct, stopPct float64) (Levels, error) {
	if reference <= 0 {
		return Levels{}, ErrInvalidReference
	}
	if targetPct < 0 || stopPct < 0 {
		return Levels{}, ErrNegativePercent
	}
	if !side.Valid() {
		return Levels{}, ErrInvalidDirection
	}

	ref := decimal.NewFromFloat(reference)
	targetDelta := ref.Mul(decimal.NewFromFloat(targetPct)).Div(oneHundred)
	stopDelta := ref.Mul(decimal.NewFromFloat(stopPct)).Div(oneHundred)

	var target, stop decimal.Decimal
	if side == alpaca.SideBuy {
		target = ref.Add(targetDelta)
		stop = ref.Sub(stopDelta)
	} else {
		target = ref.Sub(targetDelta)
		stop = ref.Add(stopDelta)
	}

	return Levels{
		Target: roundCents(target),
		Stop:   roundCents(stop),
	}, nil
}

// RoundToCent rounds a price half-up to 2 decimals. Idempotent.
func RoundToCent(price float64) float64 {
	return roundCents(decimal.NewFromFloat(price))
}

// roundCents uses decimal's Round, which rounds half away from zero; for
// positive prices that is half-up.
func roundCents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
