// Package coupon applies coupon codes through the backend and shapes the
// answer into a model.Coupon and a discount amount.
package coupon

import (
	"context"
	"encoding/json"

	"cart-gateway/internal/model"
	"cart-gateway/internal/remote"
)

// Validator defines the interface for coupon application.
type Validator interface {
	// Apply asks the backend to apply code against orderAmount.
	// An empty code is rejected with model.ErrMissingCouponCode before any
	// network call. A backend rejection is reported in ApplyResult; only
	// transport failures are returned as errors.
	Apply(ctx context.Context, code string, orderAmount float64) (ApplyResult, error)
}

// ApplyResult is the outcome of an apply call the backend answered.
type ApplyResult struct {
	OK             bool          `json:"ok"`
	Coupon         *model.Coupon `json:"coupon,omitempty"`
	DiscountAmount float64       `json:"discountAmount"`
	Status         int           `json:"-"`
	Error          string        `json:"error,omitempty"`
	Field          string        `json:"field,omitempty"`
}

// Applier is the backend call behind Apply.
type Applier interface {
	ApplyCoupon(ctx context.Context, code string, orderAmount float64) (remote.Result[json.RawMessage], error)
}
