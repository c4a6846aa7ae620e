package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/handler"
	"cart-gateway/internal/middleware"
	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/remote/remotetest"
	"cart-gateway/internal/session"
	"cart-gateway/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, limiter *middleware.Limiter) http.Handler {
	t.Helper()
	logger := zerolog.Nop()

	backend := remotetest.NewServer([]model.Product{{ID: "p1", Name: "Mug", Price: 12}}, nil)
	t.Cleanup(backend.Close)

	client, err := remote.NewClient(backend.URL, time.Second, nil, logger)
	require.NoError(t, err)
	st, err := store.NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)

	rule := pricing.ShippingRule{FreeThreshold: 100, FlatAmount: 10}
	manager := cart.NewManager(func(s *session.Session) cart.Remote { return client.ForSession(s) }, st, logger)

	return New(
		handler.NewCartHandler(manager, handler.CouponsFor(client, logger), rule, "USD", logger),
		handler.NewCheckoutHandler(manager, handler.CheckoutsFor(client, rule, "USD", logger), handler.CouponsFor(client, logger), logger),
		limiter,
		logger,
	)
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, middleware.NewLimiter(100, 100))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		guest      string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "cart", method: http.MethodGet, path: "/cart", guest: "guest-route", wantStatus: http.StatusOK},
		{name: "add item", method: http.MethodPost, path: "/cart/items", guest: "guest-route", body: `{"product":{"id":"p1","price":12},"quantity":1}`, wantStatus: http.StatusOK},
		{name: "update missing item", method: http.MethodPut, path: "/cart/items/nope", guest: "guest-route", body: `{"quantity":2}`, wantStatus: http.StatusOK},
		{name: "remove missing item", method: http.MethodDelete, path: "/cart/items/nope", guest: "guest-route", wantStatus: http.StatusOK},
		{name: "refresh", method: http.MethodPost, path: "/cart/refresh", guest: "guest-route", wantStatus: http.StatusOK},
		{name: "reconcile", method: http.MethodPost, path: "/cart/reconcile", guest: "guest-route", wantStatus: http.StatusOK},
		{name: "clear", method: http.MethodDelete, path: "/cart", guest: "guest-route", wantStatus: http.StatusOK},
		{name: "verify needs reference", method: http.MethodGet, path: "/checkout/verify/", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPatch, path: "/cart", guest: "guest-route", wantStatus: http.StatusMethodNotAllowed},
		{name: "unknown path", method: http.MethodGet, path: "/api/products", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.guest != "" {
				req.Header.Set(middleware.GuestHeader, tt.guest)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRouter_CartTotalsInConfiguredCurrency(t *testing.T) {
	r := newTestRouter(t, middleware.NewLimiter(100, 100))

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product":{"id":"p1","price":12},"quantity":2}`))
	req.Header.Set(middleware.GuestHeader, "guest-money")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.CartResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "$34.00", resp.FormattedTotal)
	assert.Equal(t, "USD", resp.Currency)
}

func TestRouter_RateLimited(t *testing.T) {
	r := newTestRouter(t, middleware.NewLimiter(0.001, 1))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(middleware.GuestHeader, "guest-limited")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestRouter_Preflight(t *testing.T) {
	r := newTestRouter(t, middleware.NewLimiter(100, 100))

	req := httptest.NewRequest(http.MethodOptions, "/cart", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), middleware.GuestHeader)
}
