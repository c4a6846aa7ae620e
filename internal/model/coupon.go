package model

import (
	"fmt"
	"strings"
	"time"
)

// DiscountType is the strategy a coupon uses to compute its discount.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether d is a known discount type.
func (d DiscountType) Valid() bool {
	switch d {
	case DiscountPercentage, DiscountFixed:
		return true
	}
	return false
}

// ParseDiscountType maps backend spellings onto a DiscountType.
func ParseDiscountType(s string) (DiscountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent":
		return DiscountPercentage, nil
	case "fixed", "amount", "flat":
		return DiscountFixed, nil
	}
	return "", fmt.Errorf("unknown discount type %q", s)
}

// Coupon is a discount code as returned by the backend.
type Coupon struct {
	Code              string       `json:"code"`
	DiscountType      DiscountType `json:"discountType"`
	DiscountValue     float64      `json:"discountValue"`
	MinOrderAmount    float64      `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount *float64     `json:"maxDiscountAmount,omitempty"`
	ValidFrom         *time.Time   `json:"validFrom,omitempty"`
	ValidUntil        *time.Time   `json:"validUntil,omitempty"`
}

// NormalizeCouponCode trims and upper-cases a coupon code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
