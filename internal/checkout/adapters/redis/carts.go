// Package redis persists carts in Redis so they survive restarts and reloads.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/database"
)

// cartLine is the stored form of a cart line: the product as it was when added,
// plus the quantity.
type cartLine struct {
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

// CartRepository stores each cart as a JSON list under cart:<customer id>. Every
// save refreshes the key's TTL.
type CartRepository struct {
	client  goredis.Cmdable
	ttl     time.Duration
	metrics *database.Metrics
}

func NewCartRepository(client goredis.Cmdable, ttl time.Duration, metrics *database.Metrics) *CartRepository {
	return &CartRepository{client: client, ttl: ttl, metrics: metrics}
}

func (r *CartRepository) Load(ctx context.Context, customerID string) (cart domain.Cart, err error) {
	defer r.metrics.Since(ctx, "carts", "load", time.Now(), &err)

	data, err := r.client.Get(ctx, cartKey(customerID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get cart: %w", err)
	}

	var lines []cartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %v", ports.ErrCorruptCart, err)
	}

	items := make([]domain.CartItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.CartItem{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			UnitPrice: line.Product.Price,
			Image:     line.Product.Image,
			Quantity:  line.Quantity,
		})
	}
	return domain.Cart{Items: items}, nil
}

func (r *CartRepository) Save(ctx context.Context, customerID string, cart domain.Cart) (err error) {
	defer r.metrics.Since(ctx, "carts", "save", time.Now(), &err)

	lines := make([]cartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, cartLine{
			Product: domain.Product{
				ID:    item.ProductID,
				Name:  item.Name,
				Price: item.UnitPrice,
				Image: item.Image,
			},
			Quantity: item.Quantity,
		})
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(customerID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, customerID string) (err error) {
	defer r.metrics.Since(ctx, "carts", "delete", time.Now(), &err)

	if err := r.client.Del(ctx, cartKey(customerID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func cartKey(customerID string) string {
	return "cart:" + customerID
}
