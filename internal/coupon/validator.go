package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// validator implements Validator on top of the backend apply endpoint.
type validator struct {
	backend Applier
	logger  zerolog.Logger
}

// NewValidator creates a new coupon validator.
func NewValidator(backend Applier, logger zerolog.Logger) Validator {
	return &validator{
		backend: backend,
		logger:  logger.With().Str("component", "coupon-validator").Logger(),
	}
}

// Apply normalizes code and posts it with orderAmount. Business rules such as
// minimum order or expiry are left to the backend.
func (v *validator) Apply(ctx context.Context, code string, orderAmount float64) (ApplyResult, error) {
	code = model.NormalizeCouponCode(code)
	if code == "" {
		return ApplyResult{}, model.ErrMissingCouponCode
	}

	res, err := v.backend.ApplyCoupon(ctx, code, orderAmount)
	if err != nil {
		v.logger.Warn().Err(err).Str("coupon_code", code).Msg("failed to reach coupon service")
		return ApplyResult{}, fmt.Errorf("failed to apply coupon: %w", err)
	}

	if !res.OK {
		v.logger.Debug().
			Str("coupon_code", code).
			Int("status", res.Status).
			Str("error", res.Error).
			Msg("coupon rejected")
		return ApplyResult{OK: false, Status: res.Status, Error: res.Error, Field: res.Field}, nil
	}

	coupon, discount, err := parseApplied(res.Data, code, orderAmount)
	if err != nil {
		v.logger.Warn().Err(err).Str("coupon_code", code).Msg("unreadable coupon response")
		return ApplyResult{}, fmt.Errorf("failed to decode coupon response: %w", err)
	}

	v.logger.Debug().
		Str("coupon_code", code).
		Float64("discount_amount", discount).
		Msg("coupon applied")

	return ApplyResult{OK: true, Status: res.Status, Coupon: coupon, DiscountAmount: discount}, nil
}

// wireCoupon accepts both camelCase and snake_case fields, at the top level
// or under "coupon". decimal.NullDecimal accepts numbers and numeric strings.
type wireCoupon struct {
	Code                   string              `json:"code"`
	DiscountAmount         decimal.NullDecimal `json:"discountAmount"`
	DiscountAmountSnake    decimal.NullDecimal `json:"discount_amount"`
	DiscountType           string              `json:"discountType"`
	DiscountTypeSnake      string              `json:"discount_type"`
	DiscountValue          decimal.NullDecimal `json:"discountValue"`
	DiscountValueSnake     decimal.NullDecimal `json:"discount_value"`
	MinOrderAmount         decimal.NullDecimal `json:"minOrderAmount"`
	MinOrderAmountSnake    decimal.NullDecimal `json:"min_order_amount"`
	MaxDiscountAmount      decimal.NullDecimal `json:"maxDiscountAmount"`
	MaxDiscountAmountSnake decimal.NullDecimal `json:"max_discount_amount"`
	ValidFrom              flexTime            `json:"validFrom"`
	ValidFromSnake         flexTime            `json:"valid_from"`
	ValidUntil             flexTime            `json:"validUntil"`
	ValidUntilSnake        flexTime            `json:"valid_until"`
	Coupon                 *wireCoupon         `json:"coupon"`
}

// parseApplied shapes an apply response. When the backend omits the discount
// amount it is computed from the returned coupon terms. The result is
// clamped to [0, orderAmount].
func parseApplied(raw json.RawMessage, code string, orderAmount float64) (*model.Coupon, float64, error) {
	var top wireCoupon
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &top); err != nil {
			return nil, 0, err
		}
	}

	merged := top
	if top.Coupon != nil {
		merged = mergeWire(*top.Coupon, top)
	}

	coupon := &model.Coupon{
		Code:              firstNonEmpty(model.NormalizeCouponCode(merged.Code), code),
		DiscountValue:     pick(merged.DiscountValue, merged.DiscountValueSnake).InexactFloat64(),
		MinOrderAmount:    pick(merged.MinOrderAmount, merged.MinOrderAmountSnake).InexactFloat64(),
		MaxDiscountAmount: optional(merged.MaxDiscountAmount, merged.MaxDiscountAmountSnake),
		ValidFrom:         firstTime(merged.ValidFrom, merged.ValidFromSnake),
		ValidUntil:        firstTime(merged.ValidUntil, merged.ValidUntilSnake),
	}
	if dt, err := model.ParseDiscountType(firstNonEmpty(merged.DiscountType, merged.DiscountTypeSnake)); err == nil {
		coupon.DiscountType = dt
	}

	amount := decimal.NewFromFloat(orderAmount)
	var discount decimal.Decimal
	if d, ok := present(merged.DiscountAmount, merged.DiscountAmountSnake); ok {
		discount = d
	} else {
		discount = pricing.Discount(coupon, amount)
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if amount.IsPositive() {
		discount = decimal.Min(discount, amount)
	} else {
		discount = decimal.Zero
	}

	return coupon, pricing.Round(discount), nil
}

// mergeWire fills empty fields of inner from outer; the top-level
// discount amount wins over a nested one.
func mergeWire(inner, outer wireCoupon) wireCoupon {
	if inner.Code == "" {
		inner.Code = outer.Code
	}
	if outer.DiscountAmount.Valid || outer.DiscountAmountSnake.Valid {
		inner.DiscountAmount = outer.DiscountAmount
		inner.DiscountAmountSnake = outer.DiscountAmountSnake
	}
	if inner.DiscountType == "" && inner.DiscountTypeSnake == "" {
		inner.DiscountType = firstNonEmpty(outer.DiscountType, outer.DiscountTypeSnake)
	}
	if !inner.DiscountValue.Valid && !inner.DiscountValueSnake.Valid {
		inner.DiscountValue = outer.DiscountValue
		inner.DiscountValueSnake = outer.DiscountValueSnake
	}
	return inner
}

func present(values ...decimal.NullDecimal) (decimal.Decimal, bool) {
	for _, v := range values {
		if v.Valid {
			return v.Decimal, true
		}
	}
	return decimal.Zero, false
}

func pick(values ...decimal.NullDecimal) decimal.Decimal {
	d, _ := present(values...)
	return d
}

func optional(values ...decimal.NullDecimal) *float64 {
	if d, ok := present(values...); ok {
		f := d.InexactFloat64()
		return &f
	}
	return nil
}

// flexTime accepts RFC 3339 timestamps and bare dates. Anything else is
// treated as absent.
type flexTime struct {
	t *time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			f.t = &t
			return nil
		}
	}
	return nil
}

func firstTime(values ...flexTime) *time.Time {
	for _, v := range values {
		if v.t != nil {
			return v.t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
