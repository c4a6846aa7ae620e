package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks cart lines created locally that the server has not
// acknowledged yet.
const LocalIDPrefix = "local-"

// CartItem represents a single line in a cart.
type CartItem struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"originalPrice,omitempty"`
	Image         string  `json:"image,omitempty"`
	Quantity      int     `json:"quantity"`
}

// Unreconciled reports whether the line was created by an optimistic local merge.
func (i CartItem) Unreconciled() bool {
	return strings.HasPrefix(i.ID, LocalIDPrefix)
}

// NewLocalItemID generates an id for a line that only exists locally.
func NewLocalItemID() string {
	return LocalIDPrefix + uuid.NewString()
}

// Cart is an ordered collection of cart lines keyed by ID.
type Cart struct {
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{Items: []CartItem{}}
}

// Find returns the index of the line with the given id, or -1.
func (c *Cart) Find(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// FindByProduct returns the index of the first line for productID, or -1.
func (c *Cart) FindByProduct(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// HasUnreconciled reports whether any line still awaits server acknowledgement.
func (c *Cart) HasUnreconciled() bool {
	for _, item := range c.Items {
		if item.Unreconciled() {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy of the cart. A nil cart clones to an empty one.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return NewCart()
	}
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return &Cart{Items: items, UpdatedAt: c.UpdatedAt}
}

// Normalize drops lines with a non-positive quantity or an empty id and
// collapses duplicate ids, keeping the first occurrence.
func (c *Cart) Normalize() {
	seen := make(map[string]struct{}, len(c.Items))
	items := c.Items[:0]
	for _, item := range c.Items {
		if item.ID == "" || item.Quantity < 1 {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	if items == nil {
		items = []CartItem{}
	}
	c.Items = items
}
