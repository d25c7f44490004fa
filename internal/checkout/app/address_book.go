package app

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

// AddAddressInput captures a new shipping address.
type AddAddressInput struct {
	RecipientName  string `json:"recipient_name" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
	SecondaryPhone string `json:"secondary_phone"`
	Street         string `json:"street" validate:"required"`
	Instructions   string `json:"instructions"`
	Region         string `json:"region"`
	City           string `json:"city" validate:"required"`
	IsDefault      bool   `json:"is_default"`
}

func (in AddAddressInput) trimmed() AddAddressInput {
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.SecondaryPhone = strings.TrimSpace(in.SecondaryPhone)
	in.Street = strings.TrimSpace(in.Street)
	in.Instructions = strings.TrimSpace(in.Instructions)
	in.Region = strings.TrimSpace(in.Region)
	in.City = strings.TrimSpace(in.City)
	return in
}

// AddressBook manages each customer's shipping addresses. At most one address per
// customer is the default and it sorts first.
type AddressBook struct {
	repo        ports.AddressRepository
	validate    *validator.Validate
	countryCode string
	now         func() time.Time
}

func NewAddressBook(repo ports.AddressRepository, countryCode string) *AddressBook {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if countryCode == "" {
		countryCode = domain.KenyaCountryCode
	}
	return &AddressBook{
		repo:        repo,
		validate:    v,
		countryCode: countryCode,
		now:         time.Now,
	}
}

func (b *AddressBook) AddAddress(ctx context.Context, customerID string, input AddAddressInput) (domain.Address, error) {
	input = input.trimmed()
	if err := b.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.Address{}, err
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return domain.Address{}, domain.NewValidationError("missing required address fields", fields...)
	}

	existing, err := b.List(ctx, customerID)
	if err != nil {
		return domain.Address{}, err
	}

	address := domain.Address{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		RecipientName:  input.RecipientName,
		Phone:          domain.LocalPhoneDigits(input.Phone, b.countryCode),
		SecondaryPhone: domain.LocalPhoneDigits(input.SecondaryPhone, b.countryCode),
		Street:         input.Street,
		Instructions:   input.Instructions,
		Region:         input.Region,
		City:           input.City,
		IsDefault:      input.IsDefault,
		CreatedAt:      b.now().UTC(),
	}
	if address.Region == "" {
		address.Region = domain.DefaultRegion
	}
	if err := address.Validate(); err != nil {
		return domain.Address{}, err
	}

	if len(existing) > 0 {
		if address.IsDefault {
			address.Position = existing[0].Position - 1
		} else {
			address.Position = existing[len(existing)-1].Position + 1
		}
	}

	if err := b.repo.UpsertAddress(ctx, address); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

// SelectAddress resolves one of the customer's addresses for shipping.
func (b *AddressBook) SelectAddress(ctx context.Context, customerID, addressID string) (domain.Address, error) {
	addresses, err := b.List(ctx, customerID)
	if err != nil {
		return domain.Address{}, err
	}
	for _, address := range addresses {
		if address.ID == addressID {
			return address, nil
		}
	}
	return domain.Address{}, &domain.ValidationError{
		Reason: "address not found",
		Fields: []string{"address_id"},
		Err:    domain.ErrAddressNotFound,
	}
}

// DefaultAddress returns the flagged default, else the first address, else nil.
func (b *AddressBook) DefaultAddress(ctx context.Context, customerID string) (*domain.Address, error) {
	addresses, err := b.List(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, nil
	}
	for _, address := range addresses {
		if address.IsDefault {
			return &address, nil
		}
	}
	return &addresses[0], nil
}

// List returns the customer's addresses in display order.
func (b *AddressBook) List(ctx context.Context, customerID string) ([]domain.Address, error) {
	addresses, err := b.repo.ListAddresses(ctx, customerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(addresses, func(i, j int) bool {
		return addresses[i].Position < addresses[j].Position
	})
	return addresses, nil
}
