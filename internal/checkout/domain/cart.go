package domain

// Product is the catalog snapshot captured when an item enters a cart.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image,omitempty"`
}

// CartItem is a single cart line. Product ids are unique within a cart.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Cart is an immutable value. Every change goes through Apply and produces a new Cart.
type Cart struct {
	Items []CartItem `json:"items"`
}

// CartEvent is a cart mutation.
type CartEvent interface {
	applyTo(items []CartItem) []CartItem
}

// ItemAdded adds one unit of a product, merging with an existing line.
type ItemAdded struct {
	Product Product
}

// ItemRemoved drops a line entirely.
type ItemRemoved struct {
	ProductID string
}

// QuantitySet sets the quantity of a line. Zero or less removes it.
type QuantitySet struct {
	ProductID string
	Quantity  int
}

// CartCleared empties the cart.
type CartCleared struct{}

// ItemsCheckedOut removes the quantities of a committed quote. Lines added or
// topped up after the quote was taken keep the difference.
type ItemsCheckedOut struct {
	Items []CartItem
}

// Apply returns the cart that results from ev. The receiver is never modified.
func (c Cart) Apply(ev CartEvent) Cart {
	return Cart{Items: ev.applyTo(c.Items)}
}

func (e ItemAdded) applyTo(items []CartItem) []CartItem {
	next := make([]CartItem, 0, len(items)+1)
	merged := false
	for _, item := range items {
		if item.ProductID == e.Product.ID {
			item.Quantity++
			merged = true
		}
		next = append(next, item)
	}
	if !merged {
		next = append(next, CartItem{
			ProductID: e.Product.ID,
			Name:      e.Product.Name,
			UnitPrice: e.Product.Price,
			Image:     e.Product.Image,
			Quantity:  1,
		})
	}
	return next
}

func (e ItemRemoved) applyTo(items []CartItem) []CartItem {
	next := make([]CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID != e.ProductID {
			next = append(next, item)
		}
	}
	return next
}

func (e QuantitySet) applyTo(items []CartItem) []CartItem {
	if e.Quantity <= 0 {
		return ItemRemoved{ProductID: e.ProductID}.applyTo(items)
	}
	next := make([]CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == e.ProductID {
			item.Quantity = e.Quantity
		}
		next = append(next, item)
	}
	return next
}

func (CartCleared) applyTo([]CartItem) []CartItem {
	return nil
}

func (e ItemsCheckedOut) applyTo(items []CartItem) []CartItem {
	bought := make(map[string]int, len(e.Items))
	for _, item := range e.Items {
		bought[item.ProductID] += item.Quantity
	}
	next := make([]CartItem, 0, len(items))
	for _, item := range items {
		item.Quantity -= bought[item.ProductID]
		if item.Quantity > 0 {
			next = append(next, item)
		}
	}
	return next
}

// Total is the sum of line subtotals.
func (c Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

// Count is the sum of line quantities.
func (c Cart) Count() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Snapshot returns a copy of the lines that shares no memory with the cart.
func (c Cart) Snapshot() []CartItem {
	if len(c.Items) == 0 {
		return nil
	}
	out := make([]CartItem, len(c.Items))
	copy(out, c.Items)
	return out
}

// Line returns the line for productID, if any.
func (c Cart) Line(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Sanitize drops lines that could not have been produced by Apply.
// Used when rehydrating persisted carts.
func (c Cart) Sanitize() Cart {
	seen := make(map[string]struct{}, len(c.Items))
	next := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			continue
		}
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		next = append(next, item)
	}
	if len(next) == 0 {
		return Cart{}
	}
	return Cart{Items: next}
}
