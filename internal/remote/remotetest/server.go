// Package remotetest provides an in-memory storefront backend for tests of
// code built on the remote client.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"cart-gateway/internal/model"
	"cart-gateway/internal/pricing"

	"github.com/shopspring/decimal"
)

// Server is a storefront backend keeping one cart per bearer token.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	products map[string]model.Product
	coupons  map[string]model.Coupon
	carts    map[string][]model.CartItem
	orders   map[string]model.Order
	nextID   int
	down     bool
}

// NewServer starts a backend selling products and honouring coupons.
func NewServer(products []model.Product, coupons []model.Coupon) *Server {
	s := &Server{
		products: make(map[string]model.Product),
		coupons:  make(map[string]model.Coupon),
		carts:    make(map[string][]model.CartItem),
		orders:   make(map[string]model.Order),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, c := range coupons {
		s.coupons[model.NormalizeCouponCode(c.Code)] = c
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart", s.authed(s.listCart))
	mux.HandleFunc("POST /api/cart", s.authed(s.addToCart))
	mux.HandleFunc("DELETE /api/cart", s.authed(s.clearCart))
	mux.HandleFunc("PUT /api/cart/{id}", s.authed(s.updateItem))
	mux.HandleFunc("DELETE /api/cart/{id}", s.authed(s.removeItem))
	mux.HandleFunc("POST /api/coupons/apply", s.applyCoupon)
	mux.HandleFunc("POST /api/payments/order", s.authed(s.createOrder))
	mux.HandleFunc("GET /api/payments/verify/{reference}", s.authed(s.verify))

	s.Server = httptest.NewServer(s.gate(mux))
	return s
}

// SetDown makes every request fail at the connection level.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Cart returns the server cart of token.
func (s *Server) Cart(token string) []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CartItem(nil), s.carts[token]...)
}

// Orders returns the orders placed so far.
func (s *Server) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	return orders
}

func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		s.mu.Unlock()

		if down {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenHandler func(w http.ResponseWriter, r *http.Request, token string)

func (s *Server) authed(next tokenHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Authentication required"})
			return
		}
		next(w, r, token)
	}
}

func (s *Server) listCart(w http.ResponseWriter, r *http.Request, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// snake_case lines with a nested product, as the live backend sends them
	lines := make([]map[string]any, 0, len(s.carts[token]))
	for _, item := range s.carts[token] {
		lines = append(lines, map[string]any{
			"cart_item_id": item.ID,
			"product_id":   item.ProductID,
			"quantity":     item.Quantity,
			"product": map[string]any{
				"id":             item.ProductID,
				"name":           item.Name,
				"price":          fmt.Sprintf("%.2f", item.Price),
				"original_price": item.OriginalPrice,
				"image_url":      item.Image,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"items": lines}})
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request, token string) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid body"})
		return
	}
	if req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Quantity must be positive", "field": "quantity"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[req.ProductID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"message": "Product not found", "field": "productId"}})
		return
	}

	lines := s.carts[token]
	for i := range lines {
		if lines[i].ProductID == req.ProductID {
			lines[i].Quantity += req.Quantity
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	s.nextID++
	s.carts[token] = append(lines, model.CartItem{
		ID:            fmt.Sprintf("ci-%d", s.nextID),
		ProductID:     product.ID,
		Name:          product.Name,
		Price:         product.Price,
		OriginalPrice: product.OriginalPrice,
		Image:         product.Image,
		Quantity:      req.Quantity,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request, token string) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Quantity must be positive", "field": "quantity"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[token]
	for i := range lines {
		if lines[i].ID == r.PathValue("id") {
			lines[i].Quantity = req.Quantity
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Cart item not found"})
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[token]
	for i := range lines {
		if lines[i].ID == r.PathValue("id") {
			s.carts[token] = append(lines[:i], lines[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Cart item not found"})
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string  `json:"code"`
		OrderAmount float64 `json:"orderAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid body"})
		return
	}

	s.mu.Lock()
	coupon, ok := s.coupons[model.NormalizeCouponCode(req.Code)]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Invalid coupon code", "field": "code"})
		return
	}
	if req.OrderAmount < coupon.MinOrderAmount {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": fmt.Sprintf("Minimum order amount is %.2f", coupon.MinOrderAmount),
			"field":   "orderAmount",
		})
		return
	}

	discount := pricing.Discount(&coupon, decimal.NewFromFloat(req.OrderAmount))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"discount_amount": discount.StringFixed(2),
			"coupon": map[string]any{
				"code":                coupon.Code,
				"discount_type":       string(coupon.DiscountType),
				"discount_value":      coupon.DiscountValue,
				"min_order_amount":    coupon.MinOrderAmount,
				"max_discount_amount": coupon.MaxDiscountAmount,
			},
		},
	})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, token string) {
	var order model.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid body"})
		return
	}
	if len(order.Items) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "Order has no items", "field": "items"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	reference := fmt.Sprintf("ref-%d", s.nextID)
	s.orders[reference] = order
	writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"order_id":          s.nextID,
		"reference":         reference,
		"authorization_url": "https://pay.example.test/" + reference,
	}})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request, token string) {
	reference := r.PathValue("reference")

	s.mu.Lock()
	order, ok := s.orders[reference]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Transaction not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"reference": reference,
		"status":    "success",
		"amount":    order.Total,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
