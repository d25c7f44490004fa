//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/database/dbtest"
	"github.com/dejobratic/storefront/internal/idempotency/postgres"
)

func TestStoreSaveAndGet(t *testing.T) {
	store := postgres.NewStore(dbtest.NewPool(t), nil)
	ctx := context.Background()

	response := ports.StoredResponse{
		StatusCode: 200,
		Body:       []byte(`{"reference":"ORD-1"}`),
		Reference:  "ORD-1",
	}

	if err := store.Save(ctx, "cust-1:key-1", response); err != nil {
		t.Fatalf("failed to save idempotency key: %v", err)
	}

	retrieved, err := store.Get(ctx, "cust-1:key-1")
	if err != nil {
		t.Fatalf("failed to get idempotency key: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected response, got nil")
	}
	if retrieved.StatusCode != response.StatusCode {
		t.Errorf("expected status code %d, got %d", response.StatusCode, retrieved.StatusCode)
	}
	if string(retrieved.Body) != string(response.Body) {
		t.Errorf("expected body %s, got %s", response.Body, retrieved.Body)
	}
	if retrieved.Reference != response.Reference {
		t.Errorf("expected reference %s, got %s", response.Reference, retrieved.Reference)
	}
}

func TestStoreGet_NotFound(t *testing.T) {
	store := postgres.NewStore(dbtest.NewPool(t), nil)

	retrieved, err := store.Get(context.Background(), "nonexistent-key")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if retrieved != nil {
		t.Errorf("expected nil response, got %v", retrieved)
	}
}

func TestStoreSave_Conflict(t *testing.T) {
	store := postgres.NewStore(dbtest.NewPool(t), nil)
	ctx := context.Background()

	first := ports.StoredResponse{StatusCode: 200, Body: []byte(`{}`), Reference: "ORD-1"}
	second := ports.StoredResponse{StatusCode: 502, Body: []byte(`{}`), Reference: "ORD-2"}

	if err := store.Save(ctx, "key", first); err != nil {
		t.Fatalf("failed to save first response: %v", err)
	}
	if err := store.Save(ctx, "key", second); err != nil {
		t.Fatalf("failed to save second response: %v", err)
	}

	retrieved, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("failed to get response: %v", err)
	}
	if retrieved.Reference != first.Reference {
		t.Errorf("expected first response to be preserved, got reference %s", retrieved.Reference)
	}
}
