// Package pricing computes cart totals. Every function is pure and total:
// bad input degrades to a zero amount instead of an error, so a total can
// always be rendered.
package pricing

import (
	"cart-gateway/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ShippingRule is the locale-specific shipping policy.
type ShippingRule struct {
	// FreeThreshold is the subtotal above which shipping is free. A subtotal
	// equal to the threshold still pays shipping.
	FreeThreshold float64
	FlatAmount    float64
}

// Subtotal returns Σ price × quantity over items.
func Subtotal(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 || item.Price < 0 {
			continue
		}
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	return total
}

// ShippingFee returns zero when subtotal exceeds the free threshold and the
// flat amount otherwise.
func ShippingFee(subtotal decimal.Decimal, rule ShippingRule) decimal.Decimal {
	if subtotal.GreaterThan(decimal.NewFromFloat(rule.FreeThreshold)) {
		return decimal.Zero
	}
	if rule.FlatAmount <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(rule.FlatAmount)
}

// Discount returns the amount coupon takes off orderAmount. A nil or
// malformed coupon yields zero. The result is never negative and never
// exceeds orderAmount.
func Discount(coupon *model.Coupon, orderAmount decimal.Decimal) decimal.Decimal {
	if coupon == nil || coupon.DiscountValue <= 0 || !orderAmount.IsPositive() {
		return decimal.Zero
	}
	if orderAmount.LessThan(decimal.NewFromFloat(coupon.MinOrderAmount)) {
		return decimal.Zero
	}

	value := decimal.NewFromFloat(coupon.DiscountValue)

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case model.DiscountFixed:
		discount = value
	case model.DiscountPercentage:
		discount = orderAmount.Mul(value).Div(hundred)
		if coupon.MaxDiscountAmount != nil && *coupon.MaxDiscountAmount >= 0 {
			discount = decimal.Min(discount, decimal.NewFromFloat(*coupon.MaxDiscountAmount))
		}
	default:
		return decimal.Zero
	}

	return decimal.Min(discount, orderAmount)
}

// Total returns max(0, subtotal + shipping - discount + tax).
func Total(subtotal, shipping, discount, tax decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount).Add(tax)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Breakdown is a full price quote for a cart at full precision.
type Breakdown struct {
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
}

// Quote prices items under rule with an optional coupon. The discount is
// computed against the subtotal. Tax is always zero.
func Quote(items []model.CartItem, rule ShippingRule, coupon *model.Coupon) Breakdown {
	subtotal := Subtotal(items)
	shipping := ShippingFee(subtotal, rule)
	discount := Discount(coupon, subtotal)
	tax := decimal.Zero

	b := Breakdown{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Tax:      tax,
		Total:    Total(subtotal, shipping, discount, tax),
	}
	if coupon != nil && discount.IsPositive() {
		b.CouponCode = coupon.Code
	}
	return b
}

// WithDiscount replaces the discount with d, clamped to [0, subtotal], and
// recomputes the total. code is kept only when the discount is positive.
func (b Breakdown) WithDiscount(d decimal.Decimal, code string) Breakdown {
	if d.IsNegative() {
		d = decimal.Zero
	}
	b.Discount = decimal.Min(d, b.Subtotal)
	b.Total = Total(b.Subtotal, b.Shipping, b.Discount, b.Tax)
	b.CouponCode = ""
	if b.Discount.IsPositive() {
		b.CouponCode = code
	}
	return b
}

// Amounts is a Breakdown rounded to two decimal places for presentation.
type Amounts struct {
	Subtotal   float64 `json:"subtotal"`
	Shipping   float64 `json:"shipping"`
	Discount   float64 `json:"discount"`
	Tax        float64 `json:"tax"`
	Total      float64 `json:"total"`
	CouponCode string  `json:"couponCode,omitempty"`
}

// Rounded rounds every amount to two decimal places.
func (b Breakdown) Rounded() Amounts {
	return Amounts{
		Subtotal:   Round(b.Subtotal),
		Shipping:   Round(b.Shipping),
		Discount:   Round(b.Discount),
		Tax:        Round(b.Tax),
		Total:      Round(b.Total),
		CouponCode: b.CouponCode,
	}
}

// Round rounds d half away from zero to two decimal places.
func Round(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
