package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/database"
)

type AddressRepository struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

func NewAddressRepository(pool *pgxpool.Pool, metrics *database.Metrics) *AddressRepository {
	return &AddressRepository{pool: pool, metrics: metrics}
}

func (r *AddressRepository) ListAddresses(ctx context.Context, customerID string) (addresses []domain.Address, err error) {
	defer r.metrics.Since(ctx, "addresses", "list", time.Now(), &err)

	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, recipient_name, phone, secondary_phone, street,
		       instructions, region, city, is_default, position, created_at
		FROM addresses
		WHERE customer_id = $1
		ORDER BY position ASC, created_at ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	addresses = []domain.Address{}
	for rows.Next() {
		var a domain.Address
		if err := rows.Scan(
			&a.ID,
			&a.CustomerID,
			&a.RecipientName,
			&a.Phone,
			&a.SecondaryPhone,
			&a.Street,
			&a.Instructions,
			&a.Region,
			&a.City,
			&a.IsDefault,
			&a.Position,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return addresses, nil
}

// UpsertAddress saves the address. Clearing the previous default and writing the
// new one happen in one transaction.
func (r *AddressRepository) UpsertAddress(ctx context.Context, address domain.Address) (err error) {
	defer r.metrics.Since(ctx, "addresses", "upsert", time.Now(), &err)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if address.IsDefault {
			_, err := tx.Exec(ctx, `
				UPDATE addresses SET is_default = FALSE
				WHERE customer_id = $1 AND id <> $2 AND is_default
			`, address.CustomerID, address.ID)
			if err != nil {
				return fmt.Errorf("clear default address: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO addresses (id, customer_id, recipient_name, phone, secondary_phone, street,
			                       instructions, region, city, is_default, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE
			SET recipient_name = EXCLUDED.recipient_name,
			    phone = EXCLUDED.phone,
			    secondary_phone = EXCLUDED.secondary_phone,
			    street = EXCLUDED.street,
			    instructions = EXCLUDED.instructions,
			    region = EXCLUDED.region,
			    city = EXCLUDED.city,
			    is_default = EXCLUDED.is_default,
			    position = EXCLUDED.position
		`,
			address.ID,
			address.CustomerID,
			address.RecipientName,
			address.Phone,
			address.SecondaryPhone,
			address.Street,
			address.Instructions,
			address.Region,
			address.City,
			address.IsDefault,
			address.Position,
			address.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert address: %w", err)
		}
		return nil
	})
}
