package models

import "time"

type CartItem struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	Size        string `json:"size"`
	PriceAtTime int    `json:"price_at_time"`
}

// Cart is stored as one JSON document per user. Items are emptied, not the
// document deleted, when an order is placed.
type Cart struct {
	UserID      string     `json:"user_id"`
	Items       []CartItem `json:"items"`
	TotalItems  int        `json:"total_items"`
	TotalAmount int        `json:"total_amount"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (c *Cart) Recalculate() {
	c.TotalItems = 0
	c.TotalAmount = 0
	for _, it := range c.Items {
		c.TotalItems += it.Quantity
		c.TotalAmount += it.PriceAtTime * it.Quantity
	}
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}
