package handler

import (
	"net/http"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/middleware"
	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CartHandler handles cart-related HTTP requests.
type CartHandler struct {
	carts    Carts
	coupons  CouponFactory
	rule     pricing.ShippingRule
	currency string
	logger   zerolog.Logger
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(carts Carts, coupons CouponFactory, rule pricing.ShippingRule, currency string, logger zerolog.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		coupons:  coupons,
		rule:     rule,
		currency: currency,
		logger:   logger.With().Str("handler", "cart").Logger(),
	}
}

// CartResponse is a cart with its price quote.
type CartResponse struct {
	Cart           *model.Cart        `json:"cart"`
	State          cart.MutationState `json:"state"`
	ItemCount      int                `json:"itemCount"`
	Unreconciled   bool               `json:"unreconciled"`
	Totals         pricing.Amounts    `json:"totals"`
	FormattedTotal string             `json:"formattedTotal"`
	Currency       string             `json:"currency"`
}

// AddItemRequest is the body of POST /cart/items.
type AddItemRequest struct {
	Product  model.Product `json:"product"`
	Quantity int           `json:"quantity"`
}

// UpdateItemRequest is the body of PUT /cart/items/{id}.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// CouponRequest is the body of POST /cart/coupon.
type CouponRequest struct {
	Code string `json:"code"`
}

// CouponResponse is the outcome of an accepted coupon with the cart quote it
// produces.
type CouponResponse struct {
	Coupon         *model.Coupon   `json:"coupon"`
	DiscountAmount float64         `json:"discountAmount"`
	Totals         pricing.Amounts `json:"totals"`
	FormattedTotal string          `json:"formattedTotal"`
}

func (h *CartHandler) respond(w http.ResponseWriter, status int, c *model.Cart, state cart.MutationState) {
	quote := pricing.Quote(c.Items, h.rule, nil)
	writeJSON(w, status, CartResponse{
		Cart:           c,
		State:          state,
		ItemCount:      c.ItemCount(),
		Unreconciled:   c.HasUnreconciled(),
		Totals:         quote.Rounded(),
		FormattedTotal: pricing.Format(quote.Total, h.currency),
		Currency:       h.currency,
	})
}

func (h *CartHandler) reconciler(w http.ResponseWriter, r *http.Request) (*cart.Reconciler, bool) {
	rec, err := h.carts.Get(middleware.CredentialsFrom(r.Context()))
	if err != nil {
		writeError(w, err, h.logger)
		return nil, false
	}
	return rec, true
}

// Get handles GET /cart requests.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	c, state, err := rec.Current(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// AddItem handles POST /cart/items requests.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, h.logger)
		return
	}

	c, state, err := rec.AddItem(r.Context(), req.Product, req.Quantity)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// UpdateItem handles PUT /cart/items/{id} requests. A quantity of zero or
// less removes the line.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, h.logger)
		return
	}

	c, state, err := rec.UpdateQuantity(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// RemoveItem handles DELETE /cart/items/{id} requests.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	c, state, err := rec.RemoveItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// Clear handles DELETE /cart requests.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	c, state, err := rec.Clear(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// Refresh handles POST /cart/refresh requests.
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	c, state, err := rec.Refresh(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// Reconcile handles POST /cart/reconcile requests. Called right after login
// with both a bearer token and the previous guest id, it first moves the
// guest cart into the account cart.
func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	creds := middleware.CredentialsFrom(r.Context())
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	if creds.Token != "" && creds.GuestID != "" {
		if _, _, err := h.carts.MergeGuest(r.Context(), creds.GuestID, rec); err != nil {
			writeError(w, err, h.logger)
			return
		}
	}

	c, state, err := rec.Reconcile(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, c, state)
}

// ApplyCoupon handles POST /cart/coupon requests. The coupon is applied
// against the current subtotal; nothing is stored.
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	creds := middleware.CredentialsFrom(r.Context())
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	var req CouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, h.logger)
		return
	}

	c, _, err := rec.Current(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	subtotal := pricing.Subtotal(c.Items)

	result, err := h.coupons(creds).Apply(r.Context(), req.Code, pricing.Round(subtotal))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	if !result.OK {
		writeCouponRejection(w, result.Status, result.Error, result.Field)
		return
	}

	// the backend's figure wins over the locally computed one
	quote := pricing.Quote(c.Items, h.rule, result.Coupon).
		WithDiscount(decimal.NewFromFloat(result.DiscountAmount), result.Coupon.Code)

	writeJSON(w, http.StatusOK, CouponResponse{
		Coupon:         result.Coupon,
		DiscountAmount: result.DiscountAmount,
		Totals:         quote.Rounded(),
		FormattedTotal: pricing.Format(quote.Total, h.currency),
	})
}

func writeCouponRejection(w http.ResponseWriter, status int, message, field string) {
	if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	if message == "" {
		message = "Coupon could not be applied"
	}
	writeJSON(w, status, model.ErrorResponse{Error: model.ErrCodeCouponRejected, Message: message, Field: field})
}
