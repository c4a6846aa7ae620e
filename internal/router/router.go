package router

import (
	"net/http"

	"cart-gateway/internal/handler"
	"cart-gateway/internal/middleware"

	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	cartHandler *handler.CartHandler,
	checkoutHandler *handler.CheckoutHandler,
	limiter *middleware.Limiter,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no session required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	mux.HandleFunc("GET /cart", cartHandler.Get)
	mux.HandleFunc("DELETE /cart", cartHandler.Clear)
	mux.HandleFunc("POST /cart/items", cartHandler.AddItem)
	mux.HandleFunc("PUT /cart/items/{id}", cartHandler.UpdateItem)
	mux.HandleFunc("DELETE /cart/items/{id}", cartHandler.RemoveItem)
	mux.HandleFunc("POST /cart/refresh", cartHandler.Refresh)
	mux.HandleFunc("POST /cart/reconcile", cartHandler.Reconcile)
	mux.HandleFunc("POST /cart/coupon", cartHandler.ApplyCoupon)

	mux.HandleFunc("POST /checkout", checkoutHandler.Create)
	mux.HandleFunc("GET /checkout/verify/{reference}", checkoutHandler.Verify)

	// Apply middleware in order: Recovery -> Logging -> CORS -> RateLimit -> Session
	var handler http.Handler = mux
	handler = middleware.Session(handler)
	handler = middleware.RateLimit(limiter, logger)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}
