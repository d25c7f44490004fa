package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// GetOrderQuery represents a request to retrieve one of a customer's orders.
type GetOrderQuery struct {
	OrderID    string
	CustomerID string
}

// GetOrderQueryHandler executes GetOrderQuery. Orders of other customers are
// reported as not found.
type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}
	if query.CustomerID != "" && order.CustomerID != query.CustomerID {
		return nil, ports.ErrNotFound
	}

	return order, nil
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if strings.TrimSpace(q.OrderID) == "" {
		return errors.New("order_id is required")
	}
	return nil
}
