package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/events"
	"cart-gateway/internal/handler"
	"cart-gateway/internal/middleware"
	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/remote/remotetest"
	"cart-gateway/internal/router"
	"cart-gateway/internal/session"
	"cart-gateway/internal/store"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var catalog = []model.Product{
	{ID: "p-shoe", Name: "Shoe", Price: 100, OriginalPrice: 120},
	{ID: "p-hat", Name: "Hat", Price: 25},
}

var maxDiscount = 50.0

var coupons = []model.Coupon{
	{Code: "SAVE10", DiscountType: model.DiscountPercentage, DiscountValue: 10, MaxDiscountAmount: &maxDiscount},
}

type gateway struct {
	handler http.Handler
	backend *remotetest.Server
	manager *cart.Manager
}

func setupGateway(t *testing.T, st store.Store, opts ...cart.Option) *gateway {
	t.Helper()

	logger := zerolog.Nop()
	backend := remotetest.NewServer(catalog, coupons)
	t.Cleanup(backend.Close)

	client, err := remote.NewClient(backend.URL, 2*time.Second, nil, logger)
	require.NoError(t, err)

	manager := cart.NewManager(func(s *session.Session) cart.Remote { return client.ForSession(s) }, st, logger, opts...)
	rule := pricing.ShippingRule{FreeThreshold: 100, FlatAmount: 10}

	return &gateway{
		handler: router.New(
			handler.NewCartHandler(manager, handler.CouponsFor(client, logger), rule, "NGN", logger),
			handler.NewCheckoutHandler(manager, handler.CheckoutsFor(client, rule, "NGN", logger), handler.CouponsFor(client, logger), logger),
			middleware.NewLimiter(1000, 1000),
			logger,
		),
		backend: backend,
		manager: manager,
	}
}

func (g *gateway) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, req)
	return w
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) handler.CartResponse {
	t.Helper()
	var resp handler.CartResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestGatewayAPI_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := SetupTestRedis(t)
	fileStore, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	st := store.NewFallbackStore(store.NewRedisStore(client, time.Hour, zerolog.Nop()), fileStore, zerolog.Nop())

	g := setupGateway(t, st)
	guest := map[string]string{middleware.GuestHeader: "guest-integration"}
	user := map[string]string{"Authorization": "Bearer tok-integration"}

	t.Run("guest cart persists in redis", func(t *testing.T) {
		w := g.do(t, http.MethodPost, "/cart/items", handler.AddItemRequest{Product: catalog[1], Quantity: 2}, guest)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeCart(t, w)
		assert.Equal(t, cart.StateAppliedLocalFallback, resp.State)
		assert.Equal(t, 2, resp.ItemCount)
		assert.Equal(t, "₦60.00", resp.FormattedTotal)

		stored := st.Load(context.Background(), "guest:guest-integration")
		require.Len(t, stored.Items, 1)
		assert.Equal(t, "p-hat", stored.Items[0].ProductID)
	})

	t.Run("login merges the guest cart into the backend", func(t *testing.T) {
		headers := map[string]string{
			"Authorization":        "Bearer tok-integration",
			middleware.GuestHeader: "guest-integration",
		}
		w := g.do(t, http.MethodPost, "/cart/reconcile", nil, headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeCart(t, w)
		assert.Equal(t, 2, resp.ItemCount)
		assert.False(t, resp.Unreconciled)
		require.Len(t, g.backend.Cart("tok-integration"), 1)
		assert.True(t, st.Load(context.Background(), "guest:guest-integration").IsEmpty())
	})

	t.Run("backend outage falls back and reconciles", func(t *testing.T) {
		g.backend.SetDown(true)
		w := g.do(t, http.MethodPost, "/cart/items", handler.AddItemRequest{Product: catalog[0], Quantity: 1}, user)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeCart(t, w)
		assert.Equal(t, cart.StateAppliedLocalFallback, resp.State)
		assert.True(t, resp.Unreconciled)

		g.backend.SetDown(false)
		w = g.do(t, http.MethodPost, "/cart/reconcile", nil, user)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp = decodeCart(t, w)
		assert.False(t, resp.Unreconciled)
		assert.Len(t, g.backend.Cart("tok-integration"), 2)
	})

	t.Run("checkout places the order and clears the cart", func(t *testing.T) {
		body := map[string]any{
			"shippingAddress": model.Address{FullName: "Ada Obi", Line1: "1 Marina", City: "Lagos", State: "Lagos", Country: "NG", Phone: "+2348000000000"},
			"paymentMethod":   model.PaymentCard,
			"couponCode":      "save10",
		}
		w := g.do(t, http.MethodPost, "/checkout", body, user)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp handler.CheckoutResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		// 150 subtotal, free shipping, 10% off
		assert.InDelta(t, 135, resp.Order.Total, 0.001)
		assert.Equal(t, "SAVE10", resp.Order.CouponCode)
		assert.NotEmpty(t, resp.Confirmation.Reference)
		assert.Empty(t, g.backend.Cart("tok-integration"))

		w = g.do(t, http.MethodGet, "/checkout/verify/"+resp.Confirmation.Reference, nil, user)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})
}

func setupNATS(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		t.Fatalf("failed to get nats endpoint: %v", err)
	}
	return endpoint
}

func TestSettledCartEvents_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	url := setupNATS(t)
	nc, err := events.Connect(url, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	received := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe(events.SubjectPrefix+">", received)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, nc.Flush())

	fileStore, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	notifier := events.NewNotifier(nc, zerolog.Nop())
	g := setupGateway(t, fileStore, cart.WithObserver(notifier.Attach))

	w := g.do(t, http.MethodPost, "/cart/items", handler.AddItemRequest{Product: catalog[0], Quantity: 2}, map[string]string{
		middleware.GuestHeader: "guest-events",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	select {
	case msg := <-received:
		assert.Equal(t, events.Subject("guest:guest-events"), msg.Subject)

		var ev events.CartSettled
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "guest:guest-events", ev.Key)
		assert.Equal(t, 2, ev.ItemCount)
		assert.Equal(t, cart.StateAppliedLocalFallback, ev.State)
	case <-time.After(5 * time.Second):
		t.Fatal("no settled cart event received")
	}

	g.manager.Close()
	notifier.Wait()
}
