package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/database"
)

// Inventory serves the product catalog and applies stock decrements. Each
// decrement locks the product row, so concurrent commits serialize per product.
type Inventory struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

func NewInventory(pool *pgxpool.Pool, metrics *database.Metrics) *Inventory {
	return &Inventory{pool: pool, metrics: metrics}
}

func (i *Inventory) GetProduct(ctx context.Context, id string) (product *domain.Product, err error) {
	defer i.metrics.Since(ctx, "inventory", "get_product", time.Now(), &err)

	query := `
		SELECT id, name, price, image
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	err = i.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

func (i *Inventory) Stock(ctx context.Context, productID string) (stock int, err error) {
	defer i.metrics.Since(ctx, "inventory", "stock", time.Now(), &err)

	err = i.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ports.ErrNotFound
		}
		return 0, fmt.Errorf("select stock: %w", err)
	}
	return stock, nil
}

// UpsertProduct creates or replaces a catalog entry and sets its stock.
func (i *Inventory) UpsertProduct(ctx context.Context, product domain.Product, stock int) (err error) {
	defer i.metrics.Since(ctx, "inventory", "upsert_product", time.Now(), &err)

	query := `
		INSERT INTO products (id, name, price, image, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, image = EXCLUDED.image,
		    stock = EXCLUDED.stock, updated_at = NOW()
	`
	if _, err = i.pool.Exec(ctx, query, product.ID, product.Name, product.Price, product.Image, stock); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// Decrement takes stock for one order line. Repeating a decrement for the same
// order and product returns the recorded adjustment.
func (i *Inventory) Decrement(ctx context.Context, req domain.StockDecrement) (adj domain.StockAdjustment, err error) {
	defer i.metrics.Since(ctx, "inventory", "decrement", time.Now(), &err)

	if req.Quantity < 1 {
		return domain.StockAdjustment{}, fmt.Errorf("decrement quantity must be positive, got %d", req.Quantity)
	}

	err = pgx.BeginFunc(ctx, i.pool, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, req.ProductID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, req.ProductID)
			}
			return fmt.Errorf("lock product: %w", err)
		}

		existing, found, err := findAdjustment(ctx, tx, req.OrderID, req.ProductID)
		if err != nil {
			return err
		}
		if found {
			adj = existing
			return nil
		}

		adj = domain.PlanDecrement(req, current, time.Now().UTC())

		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = $2, updated_at = $3
			WHERE id = $1 AND stock = $4
		`, req.ProductID, adj.RemainingStock, adj.CreatedAt, current)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("stock of %s changed during decrement", req.ProductID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO stock_adjustments (order_id, product_id, requested, reserved, previous_stock, remaining_stock, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, adj.OrderID, adj.ProductID, adj.Requested, adj.Reserved, adj.PreviousStock, adj.RemainingStock, adj.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert stock adjustment: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return adj, nil
}

func findAdjustment(ctx context.Context, tx pgx.Tx, orderID, productID string) (domain.StockAdjustment, bool, error) {
	adj := domain.StockAdjustment{OrderID: orderID, ProductID: productID}
	err := tx.QueryRow(ctx, `
		SELECT requested, reserved, previous_stock, remaining_stock, created_at
		FROM stock_adjustments
		WHERE order_id = $1 AND product_id = $2
	`, orderID, productID).Scan(
		&adj.Requested,
		&adj.Reserved,
		&adj.PreviousStock,
		&adj.RemainingStock,
		&adj.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StockAdjustment{}, false, nil
		}
		return domain.StockAdjustment{}, false, fmt.Errorf("select stock adjustment: %w", err)
	}
	return adj, true, nil
}
