package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/events"
	"alpaca-trading-bot/internal/pricing"
)

// Config bounds one orchestration run end to end.
type Config struct {
	// CheckMarketClock makes PlaceOrder fail fast with ErrMarketClosed
	// before submitting anything when the market is closed.
	CheckMarketClock bool
	// CancelEntryOnTimeout cancels the live entry order when the fill budget
	// is exhausted. Off by default: the entry is left live and the caller is
	// told, matching the historical behavior.
	CancelEntryOnTimeout bool
	Strategy             Capability
	FillMaxAttempts      int
	FillInterval         time.Duration
	Supervisor           SupervisorConfig
}

// DefaultConfig returns the standard budgets: 10 fill polls at 1s, OCO polls
// every 5s bounded to 2000 polls / 24h / 5 consecutive failures.
func DefaultConfig() Config {
	return Config{
		CheckMarketClock: true,
		Strategy:         SubmitsDiscreteLegs,
		FillMaxAttempts:  10,
		FillInterval:     time.Second,
		Supervisor: SupervisorConfig{
			Interval:    5 * time.Second,
			MaxPolls:    2000,
			MaxDuration: 24 * time.Hour,
			MaxFailures: 5,
		},
	}
}

// OrderResult is the synchronous acknowledgment returned once the entry is
// filled and both exit legs are under supervision.
type OrderResult struct {
	RunID          string         `json:"run_id"`
	Symbol         string         `json:"symbol"`
	Side           string         `json:"side"`
	Quantity       int            `json:"quantity"`
	EntryOrderID   string         `json:"entry_order_id"`
	FilledAvgPrice float64        `json:"filled_avg_price"`
	ReferencePrice float64        `json:"reference_price"`
	TargetOrderID  string         `json:"target_order_id"`
	StopOrderID    string         `json:"stop_order_id"`
	Levels         pricing.Levels `json:"levels"`
}

// Orchestrator drives one instruction through entry, fill confirmation, exit
// placement, and OCO supervision. Runs for distinct instructions are
// independent and may execute concurrently; the broker gateway is the only
// shared state.
type Orchestrator struct {
	broker   alpaca.Broker
	bus      *events.EventBus
	logger   zerolog.Logger
	cfg      Config
	strategy ExitStrategy
	waiter   *FillWaiter

	mu          sync.RWMutex
	supervisors map[string]*OcoSupervisor

	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownStop context.CancelFunc
}

// NewOrchestrator wires an orchestrator for the given broker and config.
func NewOrchestrator(broker alpaca.Broker, bus *events.EventBus, logger zerolog.Logger, cfg Config) (*Orchestrator, error) {
	strategy, err := NewExitStrategy(cfg.Strategy, broker, logger)
	if err != nil {
		return nil, err
	}

	shutdownCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		broker:       broker,
		bus:          bus,
		logger:       logger.With().Str("component", "Orchestrator").Logger(),
		cfg:          cfg,
		strategy:     strategy,
		waiter:       NewFillWaiter(broker, cfg.FillMaxAttempts, cfg.FillInterval, logger),
		supervisors:  make(map[string]*OcoSupervisor),
		shutdownCtx:  shutdownCtx,
		shutdownStop: stop,
	}, nil
}

// PlaceOrder runs the synchronous half of the lifecycle: validate, market
// clock, reference price, entry submission, fill confirmation, exit
// placement. Supervision of the exit pair continues on a background task
// after the result is returned.
func (o *Orchestrator) PlaceOrder(ctx context.Context, instr Instruction) (*OrderResult, error) {
	instr = instr.Normalized()
	if err := instr.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger := o.logger.With().Str("run_id", runID).Str("symbol", instr.Symbol).Logger()

	if o.cfg.CheckMarketClock {
		clock, err := o.broker.GetClock(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking market clock: %w", err)
		}
		if !clock.IsOpen {
			return nil, ErrMarketClosed
		}
	}

	reference, err := o.broker.GetLatestTrade(ctx, instr.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching latest trade for %s: %w", instr.Symbol, err)
	}

	// Exit levels derive from the pre-entry trade price, not the eventual
	// fill price.
	levels, err := pricing.ComputeLevels(reference, instr.Side(), instr.TargetPct, instr.StopPct)
	if err != nil {
		return nil, err
	}

	entry, err := o.broker.SubmitOrder(ctx, o.strategy.EntryRequest(instr, runID, levels))
	if err != nil {
		return nil, fmt.Errorf("submitting entry order: %w", err)
	}
	o.bus.PublishOrderPlaced(runID, entry.ID, instr.Symbol, string(entry.Type), instr.Action, instr.Quantity)

	filled, err := o.waiter.AwaitFill(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, ErrFillTimeout) && o.cfg.CancelEntryOnTimeout {
			o.cancelUnfilledEntry(entry.ID, logger)
		}
		return nil, err
	}
	o.bus.PublishEntryFilled(runID, filled.ID, instr.Symbol, filled.AvgPrice())

	pair, err := o.strategy.PlaceExits(ctx, runID, instr, filled, levels)
	if err != nil {
		return nil, err
	}
	o.bus.PublishExitsPlaced(runID, instr.Symbol, pair.TargetOrderID, pair.StopOrderID, levels.Target, levels.Stop)

	o.superviseAsync(*pair, logger)

	return &OrderResult{
		RunID:          runID,
		Symbol:         instr.Symbol,
		Side:           instr.Action,
		Quantity:       instr.Quantity,
		EntryOrderID:   filled.ID,
		FilledAvgPrice: filled.AvgPrice(),
		ReferencePrice: reference,
		TargetOrderID:  pair.TargetOrderID,
		StopOrderID:    pair.StopOrderID,
		Levels:         levels,
	}, nil
}

// superviseAsync hands the exit pair to a background supervisor decoupled
// from the intake request, bound to the orchestrator's shutdown context.
func (o *Orchestrator) superviseAsync(pair ExitPair, logger zerolog.Logger) {
	sup := NewOcoSupervisor(o.broker, o.bus, o.logger, pair, o.cfg.Supervisor)

	o.mu.Lock()
	o.supervisors[pair.RunID] = sup
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		state := sup.Run(o.shutdownCtx)
		logger.Info().Str("state", string(state)).Msg("Supervision finished")
	}()
}

// cancelUnfilledEntry is the optional timeout cleanup, best-effort.
func (o *Orchestrator) cancelUnfilledEntry(orderID string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.broker.CancelOrder(ctx, orderID); err != nil && !errors.Is(err, alpaca.ErrOrderTerminal) {
		logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to cancel unfilled entry order")
		o.bus.PublishError("Orchestrator", "failed to cancel unfilled entry order", err)
		return
	}
	logger.Info().Str("order_id", orderID).Msg("Unfilled entry order cancelled after fill timeout")
}

// Supervisors returns snapshots of all supervisors, newest state included.
func (o *Orchestrator) Supervisors() []SupervisorSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]SupervisorSnapshot, 0, len(o.supervisors))
	for _, sup := range o.supervisors {
		out = append(out, sup.Snapshot())
	}
	return out
}

// Supervisor returns the supervisor for a run, or nil.
func (o *Orchestrator) Supervisor(runID string) *OcoSupervisor {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.supervisors[runID]
}

// Close stops all supervision and waits for the background tasks to finish.
// Exit orders are left live at the broker: shutdown must not unwind
// legitimate positions.
func (o *Orchestrator) Close() {
	o.shutdownStop()
	o.wg.Wait()
}
