package model

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidQuantity      = "INVALID_QUANTITY"
	ErrCodeMissingCouponCode    = "MISSING_COUPON_CODE"
	ErrCodeCouponRejected       = "COUPON_REJECTED"
	ErrCodeCartChanged          = "CART_CHANGED"
	ErrCodeItemNotFound         = "ITEM_NOT_FOUND"
	ErrCodeEmptyCart            = "EMPTY_CART"
	ErrCodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	ErrCodeMissingAddress       = "MISSING_ADDRESS"
	ErrCodeMissingReference     = "MISSING_REFERENCE"
	ErrCodeMissingSession       = "MISSING_SESSION"
	ErrCodeInvalidSession       = "INVALID_SESSION"
	ErrCodeMissingProduct       = "MISSING_PRODUCT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	ErrCodeRejected             = "REJECTED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrInvalidQuantity      = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrMissingCouponCode    = NewDomainError(ErrCodeMissingCouponCode, "Coupon code is required")
	ErrItemNotFound         = NewDomainError(ErrCodeItemNotFound, "Cart item not found")
	ErrEmptyCart            = NewDomainError(ErrCodeEmptyCart, "Cart is empty")
	ErrInvalidPaymentMethod = NewDomainError(ErrCodeInvalidPaymentMethod, "Unsupported payment method")
	ErrMissingAddress       = NewDomainError(ErrCodeMissingAddress, "Shipping address is incomplete")
	ErrMissingReference     = NewDomainError(ErrCodeMissingReference, "Payment reference is required")
	ErrMissingProduct       = NewDomainError(ErrCodeMissingProduct, "Product ID is required")
	ErrMissingSession       = NewDomainError(ErrCodeMissingSession, "A bearer token or guest ID is required")
	ErrInvalidSession       = NewDomainError(ErrCodeInvalidSession, "Guest ID is malformed")
	ErrCartChanged          = NewDomainError(ErrCodeCartChanged, "The cart changed after the coupon was applied, please try again")
)
