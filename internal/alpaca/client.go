package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Client is a typed facade over the Alpaca order and market-data REST APIs.
// It performs no retries of its own; callers impose retry/backoff policy.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	dataURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new API client. baseURL is the trading API host,
// dataURL the market-data host.
func NewClient(apiKey, secretKey, baseURL, dataURL string, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		dataURL:    dataURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "AlpacaClient").Logger(),
	}
}

// SubmitOrder places a new order via POST /v2/orders.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding order request: %w", err)
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", body, &order); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Int("qty", order.Qty).
		Str("status", string(order.Status)).
		Msg("Order submitted")

	return &order, nil
}

// GetOrder fetches the current state of an order via GET /v2/orders/{id}.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	endpoint := c.baseURL + "/v2/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder requests cancellation via DELETE /v2/orders/{id}. Cancelling an
// order that already reached a terminal state returns ErrOrderTerminal, which
// callers treat as a no-op.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	endpoint := c.baseURL + "/v2/orders/" + url.PathEscape(orderID)
	err := c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusUnprocessableEntity) {
			return fmt.Errorf("%w: %s", ErrOrderTerminal, orderID)
		}
		return err
	}

	c.logger.Info().Str("order_id", orderID).Msg("Order cancellation requested")
	return nil
}

// GetLatestTrade returns the latest trade price for a symbol from the
// market-data host.
func (c *Client) GetLatestTrade(ctx context.Context, symbol string) (float64, error) {
	var resp latestTradeResponse
	endpoint := c.dataURL + "/v2/stocks/" + url.PathEscape(symbol) + "/trades/latest"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for symbol %s", symbol)
	}
	return resp.Trade.Price, nil
}

// GetClock returns the market clock via GET /v2/clock.
func (c *Client) GetClock(ctx context.Context) (*Clock, error) {
	var clock Clock
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/clock", nil, &clock); err != nil {
		return nil, err
	}
	return &clock, nil
}

// do executes one authenticated request. Transport failures are wrapped in
// ErrUnavailable; non-2xx responses become *APIError with the payload kept.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}

	return nil
}
