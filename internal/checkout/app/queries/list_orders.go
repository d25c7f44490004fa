package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

const maxPageSize = 100

// ListOrdersQuery lists a customer's orders, newest first.
type ListOrdersQuery struct {
	CustomerID string
	Status     string
	Page       int
	PageSize   int
}

func (q ListOrdersQuery) Validate() error {
	if strings.TrimSpace(q.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	if q.Status != "" && !domain.OrderStatus(q.Status).Valid() {
		return fmt.Errorf("unknown status %q", q.Status)
	}
	if q.Page < 0 || q.PageSize < 0 {
		return errors.New("page and page_size must not be negative")
	}
	return nil
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	filter := ports.ListFilter{
		CustomerID: query.CustomerID,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if query.Status != "" {
		status := domain.OrderStatus(query.Status)
		filter.Status = &status
	}

	return h.repo.List(ctx, filter)
}
