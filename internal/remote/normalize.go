package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cart-gateway/internal/model"
)

// Wrapper keys the backend has been seen to use around payloads, in lookup
// order. List payloads may also be wrapped in an "items" or "cart" key.
var (
	objectEnvelope = []string{"data", "result"}
	listEnvelope   = []string{"data", "items", "cart", "result"}
)

const maxEnvelopeDepth = 3

// unwrap strips {data: ...} style envelopes until it reaches a payload that
// is not one. Objects without any of keys are returned unchanged.
func unwrap(raw json.RawMessage, keys []string) json.RawMessage {
	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return trimmed
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return trimmed
		}
		next, ok := envelopeValue(obj, keys)
		if !ok {
			return trimmed
		}
		raw = next
	}
	return bytes.TrimSpace(raw)
}

func envelopeValue(obj map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// normalizeCart decodes any of the cart list shapes into cart items:
// a bare array, {items:[...]}, {data:[...]}, {data:{items:[...]}}.
func normalizeCart(raw json.RawMessage) ([]model.CartItem, error) {
	payload := unwrap(raw, listEnvelope)
	if isNull(payload) {
		return []model.CartItem{}, nil
	}

	var lines []wireCartItem
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}

	items := make([]model.CartItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, line.toModel())
	}
	return items, nil
}

// wireCartItem accepts both camelCase and snake_case fields, and a nested
// product object.
type wireCartItem struct {
	ID               flexString   `json:"id"`
	CartItemID       flexString   `json:"cart_item_id"`
	ProductID        flexString   `json:"productId"`
	ProductIDSnake   flexString   `json:"product_id"`
	Name             string       `json:"name"`
	Price            flexFloat    `json:"price"`
	OriginalPrice    flexFloat    `json:"originalPrice"`
	OriginalPriceSnk flexFloat    `json:"original_price"`
	Image            string       `json:"image"`
	ImageURL         string       `json:"image_url"`
	Quantity         flexInt      `json:"quantity"`
	Product          *wireProduct `json:"product"`
}

type wireProduct struct {
	ID            flexString `json:"id"`
	Name          string     `json:"name"`
	Price         flexFloat  `json:"price"`
	OriginalPrice flexFloat  `json:"originalPrice"`
	OriginalSnake flexFloat  `json:"original_price"`
	Image         string     `json:"image"`
	ImageURL      string     `json:"image_url"`
	Images        []string   `json:"images"`
}

func (w wireCartItem) toModel() model.CartItem {
	item := model.CartItem{
		ID:            firstNonEmpty(string(w.ID), string(w.CartItemID)),
		ProductID:     firstNonEmpty(string(w.ProductID), string(w.ProductIDSnake)),
		Name:          w.Name,
		Price:         float64(w.Price),
		OriginalPrice: firstNonZero(float64(w.OriginalPrice), float64(w.OriginalPriceSnk)),
		Image:         firstNonEmpty(w.Image, w.ImageURL),
		Quantity:      int(w.Quantity),
	}

	if p := w.Product; p != nil {
		item.ProductID = firstNonEmpty(item.ProductID, string(p.ID))
		item.Name = firstNonEmpty(item.Name, p.Name)
		item.Price = firstNonZero(item.Price, float64(p.Price))
		item.OriginalPrice = firstNonZero(item.OriginalPrice, float64(p.OriginalPrice), float64(p.OriginalSnake))
		item.Image = firstNonEmpty(item.Image, p.Image, p.ImageURL)
		if item.Image == "" && len(p.Images) > 0 {
			item.Image = p.Images[0]
		}
	}

	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if item.Price < 0 {
		item.Price = 0
	}
	return item
}

// errorBody is the union of error shapes returned by the backend.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Field   string          `json:"field"`
}

// normalizeError extracts a message and optional field from an error body.
// Unparseable bodies fall back to the HTTP status text.
func normalizeError(raw []byte, statusText string) (message, field string) {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 {
			return text, ""
		}
		return statusText, ""
	}

	field = body.Field
	if len(body.Error) > 0 && !isNull(body.Error) {
		var s string
		if err := json.Unmarshal(body.Error, &s); err == nil && s != "" {
			message = s
		} else {
			var nested struct {
				Message string `json:"message"`
				Field   string `json:"field"`
			}
			if err := json.Unmarshal(body.Error, &nested); err == nil {
				message = nested.Message
				field = firstNonEmpty(field, nested.Field)
			}
		}
	}
	message = firstNonEmpty(message, body.Message, body.Detail, statusText)
	return message, field
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat decodes a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexInt decodes a JSON integer, float or numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var v flexFloat
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = flexInt(int(v))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
