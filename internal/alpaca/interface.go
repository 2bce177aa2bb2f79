package alpaca

import "context"

// Broker is the order-API surface the lifecycle packages consume. Implemented
// by *Client against the live REST API and by *MockClient for tests and
// dry-run mode. Implementations must be safe for concurrent use and must not
// retry on their own; callers decide retry policy.
type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetLatestTrade(ctx context.Context, symbol string) (float64, error)
	GetClock(ctx context.Context) (*Clock, error)
}
