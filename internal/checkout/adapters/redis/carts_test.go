package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

func setupTestRedis(t *testing.T) (*CartRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCartRepository(client, time.Hour, nil), mr
}

func TestSaveAndLoad(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := domain.Cart{Items: []domain.CartItem{
		{ProductID: "p1", Name: "Kiondo basket", UnitPrice: 3500, Quantity: 2},
		{ProductID: "p2", Name: "Kikoi", UnitPrice: 1200, Quantity: 1},
	}}
	require.NoError(t, repo.Save(ctx, "cust-1", cart))

	assert.True(t, mr.Exists("cart:cust-1"))
	assert.Equal(t, time.Hour, mr.TTL("cart:cust-1"))

	loaded, err := repo.Load(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, cart.Items, loaded.Items)
	assert.Equal(t, int64(8200), loaded.Total())
}

func TestStoredFormatIsProductSnapshotList(t *testing.T) {
	repo, mr := setupTestRedis(t)

	require.NoError(t, repo.Save(context.Background(), "cust-1", domain.Cart{Items: []domain.CartItem{
		{ProductID: "p1", Name: "Kiondo basket", UnitPrice: 3500, Quantity: 2},
	}}))

	stored, err := mr.Get("cart:cust-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"product":{"id":"p1","name":"Kiondo basket","price":3500},"quantity":2}]`, stored)
}

func TestLoadMissingCart(t *testing.T) {
	repo, _ := setupTestRedis(t)

	_, err := repo.Load(context.Background(), "nobody")

	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestLoadCorruptCart(t *testing.T) {
	repo, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:cust-1", `[{"product":{"id":"p1"`))

	_, err := repo.Load(context.Background(), "cust-1")

	assert.True(t, errors.Is(err, ports.ErrCorruptCart))
}

func TestDelete(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("cart:cust-1", `[]`))

	require.NoError(t, repo.Delete(ctx, "cust-1"))
	assert.False(t, mr.Exists("cart:cust-1"))

	assert.NoError(t, repo.Delete(ctx, "nonexistent"))
}

func TestUnavailableRedis(t *testing.T) {
	repo, mr := setupTestRedis(t)
	mr.Close()

	_, err := repo.Load(context.Background(), "cust-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ports.ErrNotFound))
	assert.False(t, errors.Is(err, ports.ErrCorruptCart))
}
