package model

// Product is the catalogue entry a cart line is created from.
type Product struct {
	ID            string  `json:"id" validate:"required"`
	Name          string  `json:"name"`
	Price         float64 `json:"price" validate:"gte=0"`
	OriginalPrice float64 `json:"originalPrice,omitempty" validate:"gte=0"`
	Image         string  `json:"image,omitempty"`
}
