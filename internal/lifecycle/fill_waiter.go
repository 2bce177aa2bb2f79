package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"alpaca-trading-bot/internal/alpaca"
)

// FillWaiter polls an order until it fills or a retry budget is exhausted.
// Transport errors propagate immediately; the waiter never retries across
// them. Waits are timer-driven so a cancelled context stops polling promptly
// without issuing further requests.
type FillWaiter struct {
	broker      alpaca.Broker
	maxAttempts int
	interval    time.Duration
	logger      zerolog.Logger
}

// NewFillWaiter creates a waiter polling maxAttempts times, once per interval.
func NewFillWaiter(broker alpaca.Broker, maxAttempts int, interval time.Duration, logger zerolog.Logger) *FillWaiter {
	return &FillWaiter{
		broker:      broker,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger.With().Str("component", "FillWaiter").Logger(),
	}
}

// AwaitFill polls the order's status until it is filled. It returns the
// filled order, ErrFillTimeout after exactly maxAttempts unsuccessful polls,
// ErrEntryTerminal if the order dies without filling, or the broker error
// unchanged.
func (w *FillWaiter) AwaitFill(ctx context.Context, orderID string) (*alpaca.Order, error) {
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		order, err := w.broker.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if order.Filled() {
			w.logger.Info().
				Str("order_id", orderID).
				Int("attempt", attempt).
				Float64("avg_price", order.AvgPrice()).
				Msg("Entry order filled")
			return order, nil
		}

		if order.Status.Terminal() {
			return nil, fmt.Errorf("%w: status %s", ErrEntryTerminal, order.Status)
		}

		w.logger.Debug().
			Str("order_id", orderID).
			Str("status", string(order.Status)).
			Int("attempt", attempt).
			Int("max_attempts", w.maxAttempts).
			Msg("Waiting for entry order to fill")

		if attempt == w.maxAttempts {
			break
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrFillTimeout, orderID, w.maxAttempts)
}
