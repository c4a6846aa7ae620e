package handler

import (
	"net/http"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/checkout"
	"cart-gateway/internal/middleware"
	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"

	"github.com/rs/zerolog"
)

// CheckoutFactory returns the checkout service for a session.
type CheckoutFactory func(creds cart.Credentials) *checkout.Service

// CheckoutHandler handles checkout-related HTTP requests.
type CheckoutHandler struct {
	carts     Carts
	checkouts CheckoutFactory
	coupons   CouponFactory
	logger    zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(carts Carts, checkouts CheckoutFactory, coupons CouponFactory, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		carts:     carts,
		checkouts: checkouts,
		coupons:   coupons,
		logger:    logger.With().Str("handler", "checkout").Logger(),
	}
}

// CheckoutRequest is the body of POST /checkout.
type CheckoutRequest struct {
	ShippingAddress *model.Address      `json:"shippingAddress" validate:"-"`
	PaymentMethod   model.PaymentMethod `json:"paymentMethod"`
	CouponCode      string              `json:"couponCode,omitempty"`
}

// CheckoutResponse is the placed order and where to pay for it.
type CheckoutResponse struct {
	Order        *model.Order            `json:"order"`
	Confirmation model.OrderConfirmation `json:"confirmation"`
}

// Create handles POST /checkout requests. Unreconciled lines are replayed
// before a coupon code is applied again, so the backend grants the discount
// against the subtotal of the cart the order is built from.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	creds := middleware.CredentialsFrom(r.Context())
	rec, err := h.carts.Get(creds)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, h.logger)
		return
	}

	// loads the cart on a fresh session
	c, _, err := rec.Current(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	if c.HasUnreconciled() {
		if c, _, err = rec.Reconcile(r.Context()); err != nil {
			writeError(w, err, h.logger)
			return
		}
	}

	order := checkout.Request{
		Address:       req.ShippingAddress,
		PaymentMethod: req.PaymentMethod,
	}

	if model.NormalizeCouponCode(req.CouponCode) != "" {
		subtotal := pricing.Round(pricing.Subtotal(c.Items))
		result, err := h.coupons(creds).Apply(r.Context(), req.CouponCode, subtotal)
		if err != nil {
			writeError(w, err, h.logger)
			return
		}
		if !result.OK {
			writeCouponRejection(w, result.Status, result.Error, result.Field)
			return
		}
		order.Coupon = result.Coupon
		order.Discount = &result.DiscountAmount
		order.DiscountSubtotal = subtotal
	}

	conf, placed, err := h.checkouts(creds).PlaceOrder(r.Context(), rec, order)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponse{Order: placed, Confirmation: conf})
}

// Verify handles GET /checkout/verify/{reference} requests.
func (h *CheckoutHandler) Verify(w http.ResponseWriter, r *http.Request) {
	creds := middleware.CredentialsFrom(r.Context())

	v, err := h.checkouts(creds).VerifyPayment(r.Context(), r.PathValue("reference"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, v)
}
