// Package handler exposes the cart, coupon and checkout operations as JSON
// endpoints for the storefront UI.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/coupon"
	"cart-gateway/internal/model"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/validate"

	"github.com/rs/zerolog"
)

const maxRequestBytes = 1 << 20

// Carts hands out the reconciler of a session.
type Carts interface {
	Get(creds cart.Credentials) (*cart.Reconciler, error)
	MergeGuest(ctx context.Context, guestID string, target *cart.Reconciler) (*model.Cart, cart.MutationState, error)
}

// CouponFactory returns the coupon validator for a session.
type CouponFactory func(creds cart.Credentials) coupon.Validator

var (
	errInvalidJSON  = model.NewDomainError(model.ErrCodeInvalidJSON, "Request body is not valid JSON")
	errInvalidField = model.NewDomainError(model.ErrCodeMissingField, "Invalid request")
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status is already sent, so a failed encode cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err onto a status code and an ErrorResponse.
func writeError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("handler error")
	} else {
		logger.Debug().Err(err).Int("status", status).Str("code", body.Error).Msg("request refused")
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, model.ErrorResponse) {
	var field string
	var fe *validate.FieldError
	if errors.As(err, &fe) {
		field = fe.Field
	}

	if errors.Is(err, model.ErrCartChanged) {
		return http.StatusConflict, model.ErrorResponse{Error: model.ErrCodeCartChanged, Message: err.Error()}
	}

	var de *model.DomainError
	if errors.As(err, &de) {
		return http.StatusBadRequest, model.ErrorResponse{Error: de.Code, Message: err.Error(), Field: field}
	}

	var rej *remote.RejectionError
	if errors.As(err, &rej) {
		status := rej.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		return status, model.ErrorResponse{Error: model.ErrCodeRejected, Message: rej.Message, Field: rej.Field}
	}

	if errors.Is(err, remote.ErrUnauthenticated) {
		return http.StatusUnauthorized, model.ErrorResponse{
			Error:   model.ErrCodeUnauthenticated,
			Message: "Sign in to continue",
		}
	}

	if remote.IsTransport(err) {
		return http.StatusBadGateway, model.ErrorResponse{
			Error:   model.ErrCodeBackendUnavailable,
			Message: "The store is unreachable, please try again",
		}
	}

	return http.StatusInternalServerError, model.ErrorResponse{
		Error:   model.ErrCodeInternalError,
		Message: "internal server error",
	}
}

// decodeJSON reads the request body into v and checks its validate tags.
// An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if err := validate.Check(v); err != nil {
		var fe *validate.FieldError
		if errors.As(err, &fe) {
			return fmt.Errorf("%w: %w", errInvalidField, fe)
		}
		return err
	}
	return nil
}
