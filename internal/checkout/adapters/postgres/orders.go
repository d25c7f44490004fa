// Package postgres implements the checkout storage ports on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/database"
)

const orderColumns = `
	id, reference, customer_id, items, total, status, payment_method,
	payment_correlation_id, payment_verification, payment_receipt, shipping_address,
	stock_state, needs_reconciliation, reconciliation_note, reconciliation_checked_at,
	created_at, updated_at`

type OrderRepository struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

func NewOrderRepository(pool *pgxpool.Pool, metrics *database.Metrics) *OrderRepository {
	return &OrderRepository{pool: pool, metrics: metrics}
}

// Create inserts the order unless its id or reference already exists, in which
// case it returns domain.ErrCommitConflict.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	defer r.metrics.Since(ctx, "orders", "create", time.Now(), &err)

	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		order.ID,
		order.Reference,
		order.CustomerID,
		items,
		order.Total,
		order.Status,
		order.PaymentMethod,
		order.PaymentCorrelationID,
		order.PaymentVerification,
		order.PaymentReceipt,
		address,
		order.StockState,
		order.NeedsReconciliation,
		order.ReconciliationNote,
		order.ReconciliationCheckedAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCommitConflict
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (order *domain.Order, err error) {
	defer r.metrics.Since(ctx, "orders", "get_by_id", time.Now(), &err)
	return r.getOne(ctx, "id", id)
}

func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (order *domain.Order, err error) {
	defer r.metrics.Since(ctx, "orders", "get_by_reference", time.Now(), &err)
	return r.getOne(ctx, "reference", reference)
}

func (r *OrderRepository) GetByCorrelationID(ctx context.Context, correlationID string) (order *domain.Order, err error) {
	defer r.metrics.Since(ctx, "orders", "get_by_correlation_id", time.Now(), &err)
	if correlationID == "" {
		return nil, ports.ErrNotFound
	}
	return r.getOne(ctx, "payment_correlation_id", correlationID)
}

func (r *OrderRepository) getOne(ctx context.Context, column, value string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + column + ` = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter ports.ListFilter) (orders []domain.Order, err error) {
	defer r.metrics.Since(ctx, "orders", "list", time.Now(), &err)

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text = '' OR customer_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize
	return r.query(ctx, query, filter.CustomerID, statusFilter, pageSize, offset)
}

// ListProvisional returns provisional orders, never-checked and least recently
// checked first. A limit of zero or less returns all of them.
func (r *OrderRepository) ListProvisional(ctx context.Context, limit int) (orders []domain.Order, err error) {
	defer r.metrics.Since(ctx, "orders", "list_provisional", time.Now(), &err)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_verification = 'provisional'
		ORDER BY reconciliation_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT NULLIF($1, 0)
	`
	if limit < 0 {
		limit = 0
	}
	return r.query(ctx, query, limit)
}

func (r *OrderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus is a compare-and-set on the current status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (err error) {
	defer r.metrics.Since(ctx, "orders", "update_status", time.Now(), &err)

	if !from.CanAdvanceTo(to) {
		return domain.ErrInvalidStatusTransition
	}

	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	tag, err := r.pool.Exec(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.getOne(ctx, "id", id); err != nil {
			return err
		}
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

func (r *OrderRepository) MarkStockApplied(ctx context.Context, id string) (err error) {
	defer r.metrics.Since(ctx, "orders", "mark_stock_applied", time.Now(), &err)

	return r.exec(ctx, `
		UPDATE orders
		SET stock_state = 'applied', needs_reconciliation = FALSE, reconciliation_note = '', updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
}

func (r *OrderRepository) FlagForReconciliation(ctx context.Context, id, note string) (err error) {
	defer r.metrics.Since(ctx, "orders", "flag_for_reconciliation", time.Now(), &err)

	return r.exec(ctx, `
		UPDATE orders
		SET needs_reconciliation = TRUE, reconciliation_note = $2, updated_at = $3
		WHERE id = $1
	`, id, note, time.Now().UTC())
}

func (r *OrderRepository) MarkReconciliationChecked(ctx context.Context, id string, at time.Time) (err error) {
	defer r.metrics.Since(ctx, "orders", "mark_reconciliation_checked", time.Now(), &err)

	return r.exec(ctx, `
		UPDATE orders
		SET reconciliation_checked_at = $2
		WHERE id = $1
	`, id, at.UTC())
}

func (r *OrderRepository) SetVerification(ctx context.Context, id string, verification domain.PaymentVerification, receipt string) (err error) {
	defer r.metrics.Since(ctx, "orders", "set_verification", time.Now(), &err)

	return r.exec(ctx, `
		UPDATE orders
		SET payment_verification = $2,
		    payment_receipt = COALESCE(NULLIF($3::text, ''), payment_receipt),
		    updated_at = $4
		WHERE id = $1
	`, id, verification, receipt, time.Now().UTC())
}

func (r *OrderRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order   domain.Order
		items   []byte
		address []byte
	)
	err := row.Scan(
		&order.ID,
		&order.Reference,
		&order.CustomerID,
		&items,
		&order.Total,
		&order.Status,
		&order.PaymentMethod,
		&order.PaymentCorrelationID,
		&order.PaymentVerification,
		&order.PaymentReceipt,
		&address,
		&order.StockState,
		&order.NeedsReconciliation,
		&order.ReconciliationNote,
		&order.ReconciliationCheckedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return &order, nil
}
