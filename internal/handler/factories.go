package handler

import (
	"cart-gateway/internal/cart"
	"cart-gateway/internal/checkout"
	"cart-gateway/internal/coupon"
	"cart-gateway/internal/pricing"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/session"

	"github.com/rs/zerolog"
)

// CouponsFor returns a CouponFactory calling the backend through client with
// the session's token.
func CouponsFor(client *remote.Client, logger zerolog.Logger) CouponFactory {
	return func(creds cart.Credentials) coupon.Validator {
		return coupon.NewValidator(client.ForSession(session.NewWithToken(creds.Token)), logger)
	}
}

// CheckoutsFor returns a CheckoutFactory pricing orders with rule in currency.
func CheckoutsFor(client *remote.Client, rule pricing.ShippingRule, currency string, logger zerolog.Logger) CheckoutFactory {
	return func(creds cart.Credentials) *checkout.Service {
		return checkout.NewService(client.ForSession(session.NewWithToken(creds.Token)), rule, currency, logger)
	}
}
