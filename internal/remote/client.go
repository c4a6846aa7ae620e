// Package remote is the HTTP client for the storefront backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cart-gateway/internal/model"

	"github.com/rs/zerolog"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies the bearer token for a call. An empty token means the
// caller is not authenticated.
type TokenSource interface {
	Token() string
}

type noToken struct{}

func (noToken) Token() string { return "" }

// Client issues JSON requests against the backend. Every call is bounded by
// the client timeout; a timeout is reported as a TransportError.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	logger  zerolog.Logger
}

// NewClient creates a client for baseURL. tokens may be nil for anonymous use.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend URL: %w", err)
	}
	if tokens == nil {
		tokens = noToken{}
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{},
		timeout: timeout,
		tokens:  tokens,
		logger:  logger.With().Str("component", "remote-client").Logger(),
	}, nil
}

// ForSession returns a client sharing the connection pool of c that
// authenticates with tokens.
func (c *Client) ForSession(tokens TokenSource) *Client {
	clone := *c
	if tokens == nil {
		tokens = noToken{}
	}
	clone.tokens = tokens
	return &clone
}

// Authenticated reports whether calls would carry a bearer token.
func (c *Client) Authenticated() bool {
	return c.tokens.Token() != ""
}

// ListCart fetches the server cart. A 404 is an empty cart.
func (c *Client) ListCart(ctx context.Context) (Result[[]model.CartItem], error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/cart", nil, true)
	if err != nil {
		return Result[[]model.CartItem]{}, err
	}

	if status == http.StatusNotFound {
		return Result[[]model.CartItem]{OK: true, Status: status, Data: []model.CartItem{}}, nil
	}
	if !isSuccess(status) {
		return rejected[[]model.CartItem](status, body), nil
	}

	items, err := normalizeCart(body)
	if err != nil {
		return Result[[]model.CartItem]{}, &TransportError{Op: "list cart", Err: err}
	}
	return Result[[]model.CartItem]{OK: true, Status: status, Data: items}, nil
}

// AddToCart adds quantity units of productID to the server cart.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (Result[Empty], error) {
	payload := map[string]any{"productId": productID, "quantity": quantity}
	return c.send(ctx, http.MethodPost, "/api/cart", payload, "add to cart")
}

// UpdateCartItem sets the quantity of a server cart line.
func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) (Result[Empty], error) {
	payload := map[string]any{"quantity": quantity}
	return c.send(ctx, http.MethodPut, "/api/cart/"+url.PathEscape(itemID), payload, "update cart item")
}

// RemoveCartItem deletes a server cart line.
func (c *Client) RemoveCartItem(ctx context.Context, itemID string) (Result[Empty], error) {
	return c.send(ctx, http.MethodDelete, "/api/cart/"+url.PathEscape(itemID), nil, "remove cart item")
}

// ClearCart deletes every line of the server cart.
func (c *Client) ClearCart(ctx context.Context) (Result[Empty], error) {
	return c.send(ctx, http.MethodDelete, "/api/cart", nil, "clear cart")
}

// ApplyCoupon posts a coupon code and order amount. The payload is returned
// unwrapped but otherwise raw; the coupon package owns its interpretation.
// The call carries a token when one is available but does not require it.
func (c *Client) ApplyCoupon(ctx context.Context, code string, orderAmount float64) (Result[json.RawMessage], error) {
	payload := map[string]any{"code": code, "orderAmount": orderAmount}
	status, body, err := c.do(ctx, http.MethodPost, "/api/coupons/apply", payload, false)
	if err != nil {
		return Result[json.RawMessage]{}, err
	}
	if !isSuccess(status) {
		return rejected[json.RawMessage](status, body), nil
	}
	return Result[json.RawMessage]{OK: true, Status: status, Data: unwrap(body, objectEnvelope)}, nil
}

// CreateOrder submits a checkout snapshot.
func (c *Client) CreateOrder(ctx context.Context, order *model.Order) (Result[model.OrderConfirmation], error) {
	status, body, err := c.do(ctx, http.MethodPost, "/api/payments/order", order, true)
	if err != nil {
		return Result[model.OrderConfirmation]{}, err
	}
	if !isSuccess(status) {
		return rejected[model.OrderConfirmation](status, body), nil
	}

	var wire struct {
		OrderID          flexString `json:"orderId"`
		OrderIDSnake     flexString `json:"order_id"`
		ID               flexString `json:"id"`
		Reference        string     `json:"reference"`
		AuthorizationURL string     `json:"authorizationUrl"`
		AuthURLSnake     string     `json:"authorization_url"`
	}
	if err := decodeObject(body, &wire); err != nil {
		return Result[model.OrderConfirmation]{}, &TransportError{Op: "create order", Err: err}
	}

	return Result[model.OrderConfirmation]{OK: true, Status: status, Data: model.OrderConfirmation{
		OrderID:          firstNonEmpty(string(wire.OrderID), string(wire.OrderIDSnake), string(wire.ID)),
		Reference:        wire.Reference,
		AuthorizationURL: firstNonEmpty(wire.AuthorizationURL, wire.AuthURLSnake),
	}}, nil
}

// VerifyPayment asks the backend for the status of a payment reference.
func (c *Client) VerifyPayment(ctx context.Context, reference string) (Result[model.PaymentVerification], error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/payments/verify/"+url.PathEscape(reference), nil, true)
	if err != nil {
		return Result[model.PaymentVerification]{}, err
	}
	if !isSuccess(status) {
		return rejected[model.PaymentVerification](status, body), nil
	}

	var wire struct {
		Reference    string     `json:"reference"`
		Status       string     `json:"status"`
		Paid         *bool      `json:"paid"`
		Amount       flexFloat  `json:"amount"`
		OrderID      flexString `json:"orderId"`
		OrderIDSnake flexString `json:"order_id"`
	}
	if err := decodeObject(body, &wire); err != nil {
		return Result[model.PaymentVerification]{}, &TransportError{Op: "verify payment", Err: err}
	}

	paid := isPaidStatus(wire.Status)
	if wire.Paid != nil {
		paid = *wire.Paid
	}
	return Result[model.PaymentVerification]{OK: true, Status: status, Data: model.PaymentVerification{
		Reference: firstNonEmpty(wire.Reference, reference),
		Status:    wire.Status,
		Paid:      paid,
		Amount:    float64(wire.Amount),
		OrderID:   firstNonEmpty(string(wire.OrderID), string(wire.OrderIDSnake)),
	}}, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any, op string) (Result[Empty], error) {
	status, body, err := c.do(ctx, method, path, payload, true)
	if err != nil {
		return Result[Empty]{}, err
	}
	if !isSuccess(status) {
		c.logger.Debug().
			Str("op", op).
			Int("status", status).
			Msg("backend rejected request")
		return rejected[Empty](status, body), nil
	}
	return Result[Empty]{OK: true, Status: status}, nil
}

// do performs one request. Only transport failures are returned as errors.
func (c *Client) do(ctx context.Context, method, path string, payload any, requireAuth bool) (int, []byte, error) {
	op := method + " " + path

	token := c.tokens.Token()
	if requireAuth && token == "" {
		return 0, nil, &TransportError{Op: op, Err: ErrUnauthenticated}
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("backend unreachable")
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("failed to read backend response")
		return 0, nil, &TransportError{Op: op, Err: err}
	}

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend call")

	return resp.StatusCode, body, nil
}

func rejected[T any](status int, body []byte) Result[T] {
	message, field := normalizeError(body, http.StatusText(status))
	return Result[T]{OK: false, Status: status, Error: message, Field: field}
}

func decodeObject(body []byte, v any) error {
	payload := unwrap(body, objectEnvelope)
	if isNull(payload) {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isPaidStatus(status string) bool {
	switch strings.ToLower(status) {
	case "success", "successful", "paid", "completed":
		return true
	}
	return false
}
