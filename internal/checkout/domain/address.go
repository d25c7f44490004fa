package domain

import (
	"strings"
	"time"
)

// DefaultRegion is applied when an address is saved without one.
const DefaultRegion = "Nairobi"

// Address is a saved delivery destination. Position orders the address book;
// lower comes first.
type Address struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	RecipientName  string    `json:"recipient_name"`
	Phone          string    `json:"phone"`
	SecondaryPhone string    `json:"secondary_phone,omitempty"`
	Street         string    `json:"street"`
	Instructions   string    `json:"instructions,omitempty"`
	Region         string    `json:"region"`
	City           string    `json:"city"`
	IsDefault      bool      `json:"is_default"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the fields required for delivery. Whitespace counts as empty.
func (a Address) Validate() error {
	var missing []string
	if strings.TrimSpace(a.RecipientName) == "" {
		missing = append(missing, "recipient_name")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return NewValidationError("missing required address fields", missing...)
	}
	return nil
}
