package domain

import "time"

// StockDecrement asks inventory to take Quantity units of a product for an order.
type StockDecrement struct {
	OrderID   string
	ProductID string
	Quantity  int
}

// StockAdjustment records what a decrement actually did. Reserved is less than
// Requested when stock ran out; stock never goes below zero.
type StockAdjustment struct {
	OrderID        string    `json:"order_id"`
	ProductID      string    `json:"product_id"`
	Requested      int       `json:"requested"`
	Reserved       int       `json:"reserved"`
	PreviousStock  int       `json:"previous_stock"`
	RemainingStock int       `json:"remaining_stock"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clamped reports whether the decrement was cut short by available stock.
func (a StockAdjustment) Clamped() bool {
	return a.Reserved < a.Requested
}

// Backordered is the number of units sold without stock.
func (a StockAdjustment) Backordered() int {
	return a.Requested - a.Reserved
}

// PlanDecrement computes the adjustment for a decrement against current stock.
func PlanDecrement(req StockDecrement, current int, now time.Time) StockAdjustment {
	if current < 0 {
		current = 0
	}
	reserved := req.Quantity
	if reserved > current {
		reserved = current
	}
	if reserved < 0 {
		reserved = 0
	}
	return StockAdjustment{
		OrderID:        req.OrderID,
		ProductID:      req.ProductID,
		Requested:      req.Quantity,
		Reserved:       reserved,
		PreviousStock:  current,
		RemainingStock: current - reserved,
		CreatedAt:      now,
	}
}
