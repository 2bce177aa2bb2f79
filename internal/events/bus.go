package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventOrderPlaced          EventType = "ORDER_PLACED"
	EventEntryFilled          EventType = "ENTRY_FILLED"
	EventExitsPlaced          EventType = "EXITS_PLACED"
	EventOrderCancelled       EventType = "ORDER_CANCELLED"
	EventTargetWon            EventType = "TARGET_WON"
	EventStopWon              EventType = "STOP_WON"
	EventSupervisionAbandoned EventType = "SUPERVISION_ABANDONED"
	EventSupervisionCancelled EventType = "SUPERVISION_CANCELLED"
	EventError                EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(runID, orderID, symbol, orderType, side string, qty int) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"run_id":     runID,
			"order_id":   orderID,
			"symbol":     symbol,
			"order_type": orderType,
			"side":       side,
			"qty":        qty,
		},
	})
}

// PublishEntryFilled publishes an entry fill event
func (eb *EventBus) PublishEntryFilled(runID, orderID, symbol string, avgPrice float64) {
	eb.Publish(Event{
		Type: EventEntryFilled,
		Data: map[string]interface{}{
			"run_id":    runID,
			"order_id":  orderID,
			"symbol":    symbol,
			"avg_price": avgPrice,
		},
	})
}

// PublishExitsPlaced publishes an event for a newly protected position
func (eb *EventBus) PublishExitsPlaced(runID, symbol, targetOrderID, stopOrderID string, targetPrice, stopPrice float64) {
	eb.Publish(Event{
		Type: EventExitsPlaced,
		Data: map[string]interface{}{
			"run_id":          runID,
			"symbol":          symbol,
			"target_order_id": targetOrderID,
			"stop_order_id":   stopOrderID,
			"target_price":    targetPrice,
			"stop_price":      stopPrice,
		},
	})
}

// PublishSupervisionOutcome publishes the terminal state of an exit pair
func (eb *EventBus) PublishSupervisionOutcome(eventType EventType, runID, symbol, winnerOrderID, loserOrderID string) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"run_id":          runID,
			"symbol":          symbol,
			"winner_order_id": winnerOrderID,
			"loser_order_id":  loserOrderID,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
