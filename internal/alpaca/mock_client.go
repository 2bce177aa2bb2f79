package alpaca

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient implements Broker in memory for tests and dry-run mode. Orders
// are created in "new" status unless AutoFillMarket is enabled; tests drive
// status transitions explicitly.
type MockClient struct {
	mu          sync.RWMutex
	orders      map[string]*Order
	prices      map[string]float64
	clockOpen   bool
	nextOrderID int

	// AutoFillMarket fills market orders immediately at the current price.
	AutoFillMarket bool

	submitErrs []error
	getErrs    map[string][]error
	cancelErrs map[string][]error

	getCalls    map[string]int
	cancelCalls map[string]int
	submitted   []OrderRequest
}

// NewMockClient creates an in-memory broker with an open market clock.
func NewMockClient() *MockClient {
	return &MockClient{
		orders:      make(map[string]*Order),
		prices:      make(map[string]float64),
		clockOpen:   true,
		nextOrderID: 1000,
		getErrs:     make(map[string][]error),
		cancelErrs:  make(map[string][]error),
		getCalls:    make(map[string]int),
		cancelCalls: make(map[string]int),
	}
}

func (m *MockClient) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted = append(m.submitted, req)

	if len(m.submitErrs) > 0 {
		err := m.submitErrs[0]
		m.submitErrs = m.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	order := &Order{
		ID:            m.newID(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Qty:           req.Qty,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Status:        StatusNew,
		CreatedAt:     time.Now().UTC(),
	}

	if req.OrderClass == ClassBracket {
		if req.TakeProfit != nil {
			tp := req.TakeProfit.LimitPrice
			order.Legs = append(order.Legs, Order{
				ID:         m.newID(),
				Symbol:     req.Symbol,
				Side:       req.Side.Opposite(),
				Type:       OrderTypeLimit,
				Qty:        req.Qty,
				LimitPrice: &tp,
				Status:     StatusNew,
				CreatedAt:  order.CreatedAt,
			})
		}
		if req.StopLoss != nil {
			sl := req.StopLoss.StopPrice
			order.Legs = append(order.Legs, Order{
				ID:        m.newID(),
				Symbol:    req.Symbol,
				Side:      req.Side.Opposite(),
				Type:      OrderTypeStop,
				Qty:       req.Qty,
				StopPrice: &sl,
				Status:    StatusNew,
				CreatedAt: order.CreatedAt,
			})
		}
		for i := range order.Legs {
			leg := order.Legs[i]
			m.orders[leg.ID] = &leg
		}
	}

	if m.AutoFillMarket && req.Type == OrderTypeMarket {
		price := m.prices[req.Symbol]
		order.Status = StatusFilled
		order.FilledAvgPrice = &price
		now := time.Now().UTC()
		order.FilledAt = &now
	}

	m.orders[order.ID] = order

	cp := *order
	return &cp, nil
}

func (m *MockClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls[orderID]++

	if errs := m.getErrs[orderID]; len(errs) > 0 {
		err := errs[0]
		m.getErrs[orderID] = errs[1:]
		if err != nil {
			return nil, err
		}
	}

	order, ok := m.orders[orderID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Body: fmt.Sprintf(`{"message":"order %s not found"}`, orderID)}
	}

	cp := *order
	return &cp, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelCalls[orderID]++

	if errs := m.cancelErrs[orderID]; len(errs) > 0 {
		err := errs[0]
		m.cancelErrs[orderID] = errs[1:]
		if err != nil {
			return err
		}
	}

	order, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderTerminal, orderID)
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrOrderTerminal, orderID)
	}

	order.Status = StatusCanceled
	now := time.Now().UTC()
	order.CanceledAt = &now
	return nil
}

func (m *MockClient) GetLatestTrade(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.prices[symbol]
	if !ok {
		return 0, &APIError{StatusCode: 404, Body: fmt.Sprintf(`{"message":"no trades for %s"}`, symbol)}
	}
	return price, nil
}

func (m *MockClient) GetClock(ctx context.Context) (*Clock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Clock{Timestamp: time.Now().UTC(), IsOpen: m.clockOpen}, nil
}

// ==================== test controls ====================

// SetPrice sets the latest trade price for a symbol.
func (m *MockClient) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetClockOpen sets the market clock state.
func (m *MockClient) SetClockOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clockOpen = open
}

// SetOrderStatus transitions an order, recording the fill price when moving
// to filled.
func (m *MockClient) SetOrderStatus(orderID string, status OrderStatus, avgPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return
	}
	order.Status = status
	if status == StatusFilled {
		order.FilledAvgPrice = &avgPrice
		now := time.Now().UTC()
		order.FilledAt = &now
	}
}

// QueueSubmitError makes the next SubmitOrder call fail with err.
func (m *MockClient) QueueSubmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErrs = append(m.submitErrs, err)
}

// QueueGetError makes the next GetOrder call for an order fail with err.
func (m *MockClient) QueueGetError(orderID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs[orderID] = append(m.getErrs[orderID], err)
}

// QueueCancelError makes the next CancelOrder call for an order fail with err.
func (m *MockClient) QueueCancelError(orderID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErrs[orderID] = append(m.cancelErrs[orderID], err)
}

// GetOrderCalls returns how many times an order's status was polled.
func (m *MockClient) GetOrderCalls(orderID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls[orderID]
}

// CancelCalls returns how many times cancellation was requested for an order.
func (m *MockClient) CancelCalls(orderID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelCalls[orderID]
}

// SubmittedRequests returns all order requests received, in order.
func (m *MockClient) SubmittedRequests() []OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderRequest, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// LookupOrder returns the current state of an order without counting as a
// poll, or nil if unknown.
func (m *MockClient) LookupOrder(orderID string) *Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil
	}
	cp := *order
	return &cp
}

func (m *MockClient) newID() string {
	m.nextOrderID++
	return fmt.Sprintf("mock-%d", m.nextOrderID)
}
