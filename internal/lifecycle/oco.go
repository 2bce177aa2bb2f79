package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/events"
)

// SupervisorState is the state of the OCO supervision state machine.
type SupervisorState string

const (
	StateMonitoring SupervisorState = "monitoring"
	StateTargetWon  SupervisorState = "target_won"
	StateStopWon    SupervisorState = "stop_won"
	StateAbandoned  SupervisorState = "abandoned"
	// StateCancelled means supervision was shut down externally. Both legs
	// are left live at the broker: cancelling them on shutdown would unwind
	// a legitimate position.
	StateCancelled SupervisorState = "cancelled"
)

// Terminal reports whether supervision has ended.
func (s SupervisorState) Terminal() bool {
	return s != StateMonitoring
}

// SupervisorConfig bounds one supervision run. The poll budget and wall-clock
// budget both apply; whichever is exceeded first abandons supervision.
type SupervisorConfig struct {
	Interval    time.Duration
	MaxPolls    int
	MaxDuration time.Duration
	MaxFailures int // consecutive transport failures tolerated
}

// SupervisorSnapshot is a point-in-time view of one supervisor for the API.
type SupervisorSnapshot struct {
	RunID         string          `json:"run_id"`
	Symbol        string          `json:"symbol"`
	TargetOrderID string          `json:"target_order_id"`
	StopOrderID   string          `json:"stop_order_id"`
	State         SupervisorState `json:"state"`
	Polls         int             `json:"polls"`
	StartedAt     time.Time       `json:"started_at"`
	WinnerOrderID string          `json:"winner_order_id,omitempty"`
}

// OcoSupervisor polls both exit legs until exactly one fills, then cancels
// the sibling. The target leg is checked before the stop leg every tick, so
// when a single tick observes both filled the target wins deterministically.
type OcoSupervisor struct {
	broker alpaca.Broker
	bus    *events.EventBus
	logger zerolog.Logger
	pair   ExitPair
	cfg    SupervisorConfig

	mu        sync.RWMutex
	state     SupervisorState
	polls     int
	winnerID  string
	startedAt time.Time
}

// NewOcoSupervisor creates a supervisor for an exit pair, in Monitoring state.
func NewOcoSupervisor(broker alpaca.Broker, bus *events.EventBus, logger zerolog.Logger, pair ExitPair, cfg SupervisorConfig) *OcoSupervisor {
	return &OcoSupervisor{
		broker: broker,
		bus:    bus,
		logger: logger.With().
			Str("component", "OcoSupervisor").
			Str("run_id", pair.RunID).
			Str("symbol", pair.Symbol).
			Logger(),
		pair:  pair,
		cfg:   cfg,
		state: StateMonitoring,
	}
}

// State returns the current state.
func (s *OcoSupervisor) State() SupervisorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a point-in-time view of the supervisor.
func (s *OcoSupervisor) Snapshot() SupervisorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SupervisorSnapshot{
		RunID:         s.pair.RunID,
		Symbol:        s.pair.Symbol,
		TargetOrderID: s.pair.TargetOrderID,
		StopOrderID:   s.pair.StopOrderID,
		State:         s.state,
		Polls:         s.polls,
		StartedAt:     s.startedAt,
		WinnerOrderID: s.winnerID,
	}
}

// Run drives the state machine until a terminal state and returns it. The
// first poll happens immediately, subsequent polls once per interval. A
// cancelled context stops polling and leaves both legs live at the broker.
func (s *OcoSupervisor) Run(ctx context.Context) SupervisorState {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	deadline := time.Now().Add(s.cfg.MaxDuration)
	failures := 0

	for {
		s.mu.Lock()
		s.polls++
		polls := s.polls
		s.mu.Unlock()

		if polls > s.cfg.MaxPolls {
			return s.abandon("poll budget exhausted")
		}
		if s.cfg.MaxDuration > 0 && time.Now().After(deadline) {
			return s.abandon("supervision duration exceeded")
		}

		state, err := s.tick(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return s.cancel()
			}
			failures++
			s.logger.Warn().
				Err(err).
				Int("consecutive_failures", failures).
				Msg("Supervision poll failed")
			if failures > s.cfg.MaxFailures {
				return s.abandon("transport failure budget exhausted")
			}
		} else {
			failures = 0
			if state.Terminal() {
				return state
			}
		}

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.cancel()
		case <-timer.C:
		}
	}
}

// tick evaluates the transition rule once: target first, then stop.
func (s *OcoSupervisor) tick(ctx context.Context) (SupervisorState, error) {
	target, err := s.broker.GetOrder(ctx, s.pair.TargetOrderID)
	if err != nil {
		return StateMonitoring, err
	}
	if target.Filled() {
		return s.settle(StateTargetWon, s.pair.TargetOrderID, s.pair.StopOrderID), nil
	}

	stop, err := s.broker.GetOrder(ctx, s.pair.StopOrderID)
	if err != nil {
		return StateMonitoring, err
	}
	if stop.Filled() {
		return s.settle(StateStopWon, s.pair.StopOrderID, s.pair.TargetOrderID), nil
	}

	return StateMonitoring, nil
}

// settle records the winner, cancels the sibling, and publishes the outcome.
// Cancelling a sibling that is already filled or canceled is a no-op and
// never alters the recorded outcome.
func (s *OcoSupervisor) settle(state SupervisorState, winnerID, loserID string) SupervisorState {
	// Sibling cancel uses its own context: the winner is already decided and
	// the cancel must be attempted even during shutdown of the poll loop.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.broker.CancelOrder(ctx, loserID); err != nil && !errors.Is(err, alpaca.ErrOrderTerminal) {
		s.logger.Error().
			Err(err).
			Str("order_id", loserID).
			Msg("Failed to cancel losing exit leg")
		s.bus.PublishError("OcoSupervisor", "failed to cancel losing exit leg", err)
	}

	s.mu.Lock()
	s.state = state
	s.winnerID = winnerID
	s.mu.Unlock()

	event := events.EventTargetWon
	if state == StateStopWon {
		event = events.EventStopWon
	}

	s.logger.Info().
		Str("winner_order_id", winnerID).
		Str("loser_order_id", loserID).
		Str("state", string(state)).
		Msg("Exit pair settled")
	s.bus.PublishSupervisionOutcome(event, s.pair.RunID, s.pair.Symbol, winnerID, loserID)

	return state
}

// abandon ends supervision without settling the pair. Both legs stay live;
// the outcome is reported on the event bus since no caller waits on it.
func (s *OcoSupervisor) abandon(reason string) SupervisorState {
	s.mu.Lock()
	s.state = StateAbandoned
	s.mu.Unlock()

	s.logger.Error().
		Str("reason", reason).
		Str("target_order_id", s.pair.TargetOrderID).
		Str("stop_order_id", s.pair.StopOrderID).
		Msg("Supervision abandoned, exit legs left live")
	s.bus.PublishSupervisionOutcome(events.EventSupervisionAbandoned, s.pair.RunID, s.pair.Symbol, "", "")

	return StateAbandoned
}

// cancel ends supervision because of external shutdown. Deliberately leaves
// both exit orders live at the broker.
func (s *OcoSupervisor) cancel() SupervisorState {
	s.mu.Lock()
	if s.state.Terminal() {
		state := s.state
		s.mu.Unlock()
		return state
	}
	s.state = StateCancelled
	s.mu.Unlock()

	s.logger.Warn().
		Str("target_order_id", s.pair.TargetOrderID).
		Str("stop_order_id", s.pair.StopOrderID).
		Msg("Supervision cancelled by shutdown, exit legs left live")
	s.bus.PublishSupervisionOutcome(events.EventSupervisionCancelled, s.pair.RunID, s.pair.Symbol, "", "")

	return StateCancelled
}
