package domain_test

import (
	"testing"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

var (
	shirt = domain.Product{ID: "p-shirt", Name: "Shirt", Price: 1500}
	mug   = domain.Product{ID: "p-mug", Name: "Mug", Price: 700}
)

func TestCartApply(t *testing.T) {
	tests := []struct {
		name      string
		events    []domain.CartEvent
		wantLines int
		wantCount int
		wantTotal int64
	}{
		{
			name:      "empty cart",
			events:    nil,
			wantLines: 0,
			wantCount: 0,
			wantTotal: 0,
		},
		{
			name:      "adding same product merges lines",
			events:    []domain.CartEvent{domain.ItemAdded{Product: shirt}, domain.ItemAdded{Product: shirt}},
			wantLines: 1,
			wantCount: 2,
			wantTotal: 3000,
		},
		{
			name:      "distinct products get distinct lines",
			events:    []domain.CartEvent{domain.ItemAdded{Product: shirt}, domain.ItemAdded{Product: mug}},
			wantLines: 2,
			wantCount: 2,
			wantTotal: 2200,
		},
		{
			name: "set quantity replaces quantity",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.QuantitySet{ProductID: mug.ID, Quantity: 4},
			},
			wantLines: 1,
			wantCount: 4,
			wantTotal: 2800,
		},
		{
			name: "set quantity zero removes line",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.ItemAdded{Product: shirt},
				domain.QuantitySet{ProductID: mug.ID, Quantity: 0},
			},
			wantLines: 1,
			wantCount: 1,
			wantTotal: 1500,
		},
		{
			name: "negative quantity removes line",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.QuantitySet{ProductID: mug.ID, Quantity: -2},
			},
			wantLines: 0,
		},
		{
			name: "set quantity of unknown product is a no-op",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.QuantitySet{ProductID: "missing", Quantity: 3},
			},
			wantLines: 1,
			wantCount: 1,
			wantTotal: 700,
		},
		{
			name: "remove drops the line",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.ItemAdded{Product: mug},
				domain.ItemRemoved{ProductID: mug.ID},
			},
			wantLines: 0,
		},
		{
			name: "clear empties the cart",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.ItemAdded{Product: shirt},
				domain.CartCleared{},
			},
			wantLines: 0,
		},
		{
			name: "checkout removes only the quoted quantities",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: shirt},
				domain.ItemAdded{Product: shirt},
				domain.ItemAdded{Product: shirt},
				domain.ItemAdded{Product: mug},
				domain.ItemsCheckedOut{Items: []domain.CartItem{
					{ProductID: shirt.ID, UnitPrice: 1500, Quantity: 2},
				}},
			},
			wantLines: 2,
			wantCount: 2,
			wantTotal: 2200,
		},
		{
			name: "checkout of the whole quote empties the cart",
			events: []domain.CartEvent{
				domain.ItemAdded{Product: mug},
				domain.ItemsCheckedOut{Items: []domain.CartItem{
					{ProductID: mug.ID, UnitPrice: 700, Quantity: 3},
				}},
			},
			wantLines: 0,
			wantCount: 0,
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := domain.Cart{}
			for _, ev := range tt.events {
				cart = cart.Apply(ev)
			}
			if len(cart.Items) != tt.wantLines {
				t.Errorf("lines = %d, want %d", len(cart.Items), tt.wantLines)
			}
			if cart.Count() != tt.wantCount {
				t.Errorf("Count() = %d, want %d", cart.Count(), tt.wantCount)
			}
			if cart.Total() != tt.wantTotal {
				t.Errorf("Total() = %d, want %d", cart.Total(), tt.wantTotal)
			}
		})
	}
}

func TestCartApplyDoesNotMutateReceiver(t *testing.T) {
	before := domain.Cart{}.Apply(domain.ItemAdded{Product: shirt})
	after := before.Apply(domain.ItemAdded{Product: shirt})

	if before.Items[0].Quantity != 1 {
		t.Errorf("original cart quantity changed to %d", before.Items[0].Quantity)
	}
	if after.Items[0].Quantity != 2 {
		t.Errorf("new cart quantity = %d, want 2", after.Items[0].Quantity)
	}
}

func TestCartSnapshotIsDetached(t *testing.T) {
	cart := domain.Cart{}.Apply(domain.ItemAdded{Product: mug})
	snap := cart.Snapshot()
	snap[0].Quantity = 99

	if cart.Items[0].Quantity != 1 {
		t.Errorf("snapshot shares memory with cart")
	}
}

func TestCartSanitize(t *testing.T) {
	cart := domain.Cart{Items: []domain.CartItem{
		{ProductID: "a", UnitPrice: 100, Quantity: 1},
		{ProductID: "", UnitPrice: 100, Quantity: 1},
		{ProductID: "b", UnitPrice: 100, Quantity: 0},
		{ProductID: "a", UnitPrice: 100, Quantity: 5},
		{ProductID: "c", UnitPrice: -1, Quantity: 1},
	}}

	got := cart.Sanitize()
	if len(got.Items) != 1 || got.Items[0].ProductID != "a" || got.Items[0].Quantity != 1 {
		t.Errorf("Sanitize() = %+v, want single line a x1", got.Items)
	}
}

func TestCartLine(t *testing.T) {
	cart := domain.Cart{}.Apply(domain.ItemAdded{Product: mug})

	if line, ok := cart.Line(mug.ID); !ok || line.UnitPrice != mug.Price {
		t.Errorf("Line(%q) = %+v, %v", mug.ID, line, ok)
	}
	if _, ok := cart.Line("missing"); ok {
		t.Error("Line(missing) reported found")
	}
}
