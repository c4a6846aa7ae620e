// Package checkout turns a settled cart into an order snapshot, submits it to
// the backend and verifies the resulting payment.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/validate"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Backend is the part of the backend client checkout needs.
type Backend interface {
	CreateOrder(ctx context.Context, order *model.Order) (remote.Result[model.OrderConfirmation], error)
	VerifyPayment(ctx context.Context, reference string) (remote.Result[model.PaymentVerification], error)
}

// Cart is the part of a cart reconciler checkout needs.
type Cart interface {
	Snapshot() *model.Cart
	Reconcile(ctx context.Context) (*model.Cart, cart.MutationState, error)
	Clear(ctx context.Context) (*model.Cart, cart.MutationState, error)
}

// Request carries the buyer's checkout choices.
type Request struct {
	Address       *model.Address
	PaymentMethod model.PaymentMethod
	Coupon        *model.Coupon
	// Discount is the amount the backend granted for Coupon. When set it is
	// used instead of computing the discount from the coupon terms.
	Discount *float64
	// DiscountSubtotal is the cart subtotal Discount was granted against.
	// PlaceOrder refuses the order with ErrCartChanged when the cart it
	// submits no longer has that subtotal.
	DiscountSubtotal float64
}

// Service builds and places orders.
type Service struct {
	backend  Backend
	rule     pricing.ShippingRule
	currency string
	logger   zerolog.Logger
}

// NewService creates a checkout service pricing orders with rule in currency.
func NewService(backend Backend, rule pricing.ShippingRule, currency string, logger zerolog.Logger) *Service {
	return &Service{
		backend:  backend,
		rule:     rule,
		currency: currency,
		logger:   logger.With().Str("component", "checkout").Logger(),
	}
}

// BuildOrder prices c and returns the order snapshot. It rejects an empty
// cart, an incomplete address and an unknown payment method.
func (s *Service) BuildOrder(c *model.Cart, req Request) (*model.Order, error) {
	if c == nil || c.IsEmpty() {
		return nil, model.ErrEmptyCart
	}
	if req.Address == nil {
		return nil, model.ErrMissingAddress
	}
	address := trimAddress(*req.Address)
	if err := validate.Check(address); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMissingAddress, err)
	}
	method, err := model.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return nil, err
	}

	quote := pricing.Quote(c.Items, s.rule, req.Coupon)
	if req.Coupon != nil && req.Discount != nil {
		quote = quote.WithDiscount(decimal.NewFromFloat(*req.Discount), req.Coupon.Code)
	}
	amounts := quote.Rounded()

	items := make([]model.OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, model.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	return &model.Order{
		Items:           items,
		ShippingAddress: address,
		Subtotal:        amounts.Subtotal,
		ShippingAmount:  amounts.Shipping,
		DiscountAmount:  amounts.Discount,
		TaxAmount:       amounts.Tax,
		Total:           amounts.Total,
		Currency:        s.currency,
		PaymentMethod:   method,
		CouponCode:      quote.CouponCode,
	}, nil
}

// PlaceOrder submits the cart as an order. Unreconciled lines are replayed
// first so the backend sees the same cart the buyer does. The cart is
// cleared once the backend accepts the order.
//
// A backend rejection is returned as *remote.RejectionError.
func (s *Service) PlaceOrder(ctx context.Context, c Cart, req Request) (model.OrderConfirmation, *model.Order, error) {
	snapshot := c.Snapshot()
	if snapshot.HasUnreconciled() {
		reconciled, _, err := c.Reconcile(ctx)
		if err != nil {
			return model.OrderConfirmation{}, nil, err
		}
		snapshot = reconciled
	}

	if req.Coupon != nil && req.Discount != nil {
		if subtotal := pricing.Round(pricing.Subtotal(snapshot.Items)); subtotal != req.DiscountSubtotal {
			s.logger.Info().
				Float64("granted_on", req.DiscountSubtotal).
				Float64("subtotal", subtotal).
				Msg("cart changed after coupon was applied")
			return model.OrderConfirmation{}, nil, model.ErrCartChanged
		}
	}

	order, err := s.BuildOrder(snapshot, req)
	if err != nil {
		return model.OrderConfirmation{}, nil, err
	}

	res, err := s.backend.CreateOrder(ctx, order)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to reach order service")
		return model.OrderConfirmation{}, order, fmt.Errorf("failed to create order: %w", err)
	}
	if !res.OK {
		s.logger.Warn().
			Int("status", res.Status).
			Str("error", res.Error).
			Str("field", res.Field).
			Msg("order rejected")
		return model.OrderConfirmation{}, order, res.Rejection()
	}

	if _, _, err := c.Clear(ctx); err != nil {
		// the order stands even when the cart cannot be cleared
		s.logger.Error().Err(err).Str("order_id", res.Data.OrderID).Msg("failed to clear cart after order")
	}

	s.logger.Info().
		Str("order_id", res.Data.OrderID).
		Str("reference", res.Data.Reference).
		Int("item_count", len(order.Items)).
		Float64("total", order.Total).
		Msg("order placed")

	return res.Data, order, nil
}

// VerifyPayment asks the backend for the state of a payment reference.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (model.PaymentVerification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return model.PaymentVerification{}, model.ErrMissingReference
	}

	res, err := s.backend.VerifyPayment(ctx, reference)
	if err != nil {
		return model.PaymentVerification{}, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !res.OK {
		return model.PaymentVerification{}, res.Rejection()
	}

	s.logger.Debug().
		Str("reference", reference).
		Bool("paid", res.Data.Paid).
		Msg("payment verified")
	return res.Data, nil
}

func trimAddress(a model.Address) model.Address {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}
