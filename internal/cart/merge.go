package cart

import "cart-gateway/internal/model"

// mergeAdd applies an add locally: an existing line for the same product is
// incremented, otherwise a new unreconciled line is appended.
func mergeAdd(c *model.Cart, product model.Product, quantity int) *model.Cart {
	next := c.Clone()
	if i := next.FindByProduct(product.ID); i >= 0 {
		next.Items[i].Quantity += quantity
		return next
	}
	next.Items = append(next.Items, model.CartItem{
		ID:            model.NewLocalItemID(),
		ProductID:     product.ID,
		Name:          product.Name,
		Price:         product.Price,
		OriginalPrice: product.OriginalPrice,
		Image:         product.Image,
		Quantity:      quantity,
	})
	return next
}

// mergeRemove drops the line with id. A missing id leaves the cart unchanged.
func mergeRemove(c *model.Cart, id string) *model.Cart {
	next := c.Clone()
	if i := next.Find(id); i >= 0 {
		next.Items = append(next.Items[:i], next.Items[i+1:]...)
	}
	return next
}

// mergeQuantity replaces the quantity of the line with id.
func mergeQuantity(c *model.Cart, id string, quantity int) *model.Cart {
	next := c.Clone()
	if i := next.Find(id); i >= 0 {
		next.Items[i].Quantity = quantity
	}
	return next
}

// fromServer builds a cart from a server listing.
func fromServer(items []model.CartItem) *model.Cart {
	c := &model.Cart{Items: append([]model.CartItem(nil), items...)}
	c.Normalize()
	return c
}
