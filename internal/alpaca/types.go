package alpaca

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the exit side for an entry side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether the side is one of buy/sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType identifies how an order executes.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderStatus is the broker-side lifecycle state of an order.
type OrderStatus string

const (
	StatusNew      OrderStatus = "new"
	StatusAccepted OrderStatus = "accepted"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
	StatusExpired  OrderStatus = "expired"
	StatusUnknown  OrderStatus = "unknown"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderClass selects plain vs broker-native bracket submission.
type OrderClass string

const (
	ClassSimple  OrderClass = "simple"
	ClassBracket OrderClass = "bracket"
)

// TakeProfitSpec is the take-profit block of a bracket submission.
type TakeProfitSpec struct {
	LimitPrice float64 `json:"limit_price,string"`
}

// StopLossSpec is the stop-loss block of a bracket submission.
type StopLossSpec struct {
	StopPrice float64 `json:"stop_price,string"`
}

// OrderRequest is the body of POST /v2/orders.
type OrderRequest struct {
	Symbol        string          `json:"symbol"`
	Qty           int             `json:"qty,string"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	TimeInForce   string          `json:"time_in_force"`
	LimitPrice    *float64        `json:"limit_price,string,omitempty"`
	StopPrice     *float64        `json:"stop_price,string,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	OrderClass    OrderClass      `json:"order_class,omitempty"`
	TakeProfit    *TakeProfitSpec `json:"take_profit,omitempty"`
	StopLoss      *StopLossSpec   `json:"stop_loss,omitempty"`
}

// Order is an order as known to the broker. The broker owns these records;
// this process only holds the last-observed copy.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            int         `json:"qty,string"`
	LimitPrice     *float64    `json:"limit_price,string,omitempty"`
	StopPrice      *float64    `json:"stop_price,string,omitempty"`
	Status         OrderStatus `json:"status"`
	FilledAvgPrice *float64    `json:"filled_avg_price,string,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
	CanceledAt     *time.Time  `json:"canceled_at,omitempty"`
	Legs           []Order     `json:"legs,omitempty"`
}

// Filled reports whether the order reached its executed terminal state.
func (o *Order) Filled() bool {
	return o != nil && o.Status == StatusFilled
}

// AvgPrice returns the recorded average fill price, or 0 if not filled yet.
func (o *Order) AvgPrice() float64 {
	if o == nil || o.FilledAvgPrice == nil {
		return 0
	}
	return *o.FilledAvgPrice
}

// Clock is the response of GET /v2/clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// latestTradeResponse is the payload of GET /v2/stocks/{symbol}/trades/latest.
type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Price     float64   `json:"p"`
		Size      int       `json:"s"`
		Timestamp time.Time `json:"t"`
	} `json:"trade"`
}
