package model

import (
	"fmt"
	"strings"
)

// PaymentMethod enumerates the payment methods the backend accepts.
type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod rejects anything outside the closed set.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentCard:
		return PaymentCard, nil
	case PaymentBankTransfer:
		return PaymentBankTransfer, nil
	case PaymentCashOnDelivery:
		return PaymentCashOnDelivery, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
}

// Address is a shipping address attached to an order.
type Address struct {
	FullName   string `json:"fullName" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone,omitempty"`
}

// OrderItem is a line item in an order snapshot.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"price"`
}

// Order is the checkout snapshot handed to the backend. Amounts are rounded
// to two decimal places.
type Order struct {
	Items           []OrderItem   `json:"items"`
	ShippingAddress Address       `json:"shipping_address"`
	Subtotal        float64       `json:"subtotal"`
	ShippingAmount  float64       `json:"shipping_amount"`
	DiscountAmount  float64       `json:"discount_amount"`
	TaxAmount       float64       `json:"tax_amount"`
	Total           float64       `json:"total_amount"`
	Currency        string        `json:"currency"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	CouponCode      string        `json:"coupon_code,omitempty"`
}

// OrderConfirmation is the backend response to a created order.
type OrderConfirmation struct {
	OrderID          string `json:"orderId"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// PaymentVerification is the backend response to a payment verification.
type PaymentVerification struct {
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	Paid      bool    `json:"paid"`
	Amount    float64 `json:"amount,omitempty"`
	OrderID   string  `json:"orderId,omitempty"`
}
