package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/database"
)

type Store struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

func NewStore(pool *pgxpool.Pool, metrics *database.Metrics) *Store {
	return &Store{pool: pool, metrics: metrics}
}

func (s *Store) Get(ctx context.Context, key string) (resp *ports.StoredResponse, err error) {
	defer s.metrics.Since(ctx, "idempotency", "get", time.Now(), &err)

	query := `
		SELECT status_code, body, reference
		FROM idempotency_keys
		WHERE key = $1
	`

	var stored ports.StoredResponse
	err = s.pool.QueryRow(ctx, query, key).Scan(
		&stored.StatusCode,
		&stored.Body,
		&stored.Reference,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &stored, nil
}

// Save keeps the first response recorded for a key.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) (err error) {
	defer s.metrics.Since(ctx, "idempotency", "save", time.Now(), &err)

	query := `
		INSERT INTO idempotency_keys (key, status_code, body, reference)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
	`

	if _, err = s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.Reference); err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}
