package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/storefront/internal/checkout/adapters/memory"
	"github.com/dejobratic/storefront/internal/checkout/app"
	"github.com/dejobratic/storefront/internal/checkout/domain"
)

func TestAddressBookAddAddress(t *testing.T) {
	ctx := context.Background()
	book := app.NewAddressBook(memory.NewAddressRepository(), domain.KenyaCountryCode)

	address, err := book.AddAddress(ctx, "c1", app.AddAddressInput{
		RecipientName: "  Amina Wanjiru ",
		Phone:         "+254 712 345 678",
		Street:        "Moi Avenue 12",
		City:          "Nairobi",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, address.ID)
	assert.Equal(t, "Amina Wanjiru", address.RecipientName)
	assert.Equal(t, "712345678", address.Phone)
	assert.Equal(t, domain.DefaultRegion, address.Region)
}

func TestAddressBookRejectsMissingFields(t *testing.T) {
	book := app.NewAddressBook(memory.NewAddressRepository(), "")

	_, err := book.AddAddress(context.Background(), "c1", app.AddAddressInput{RecipientName: "Amina", Phone: "   "})

	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.ElementsMatch(t, []string{"phone", "street", "city"}, vErr.Fields)
}

func TestAddressBookDefaultSortsFirst(t *testing.T) {
	ctx := context.Background()
	book := app.NewAddressBook(memory.NewAddressRepository(), "")
	input := func(street string, isDefault bool) app.AddAddressInput {
		return app.AddAddressInput{RecipientName: "A", Phone: "0712345678", Street: street, City: "Nairobi", IsDefault: isDefault}
	}

	_, err := book.AddAddress(ctx, "c1", input("first", false))
	require.NoError(t, err)
	_, err = book.AddAddress(ctx, "c1", input("second", false))
	require.NoError(t, err)
	home, err := book.AddAddress(ctx, "c1", input("home", true))
	require.NoError(t, err)

	list, err := book.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"home", "first", "second"}, []string{list[0].Street, list[1].Street, list[2].Street})

	def, err := book.DefaultAddress(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, home.ID, def.ID)

	_, err = book.AddAddress(ctx, "c1", input("office", true))
	require.NoError(t, err)
	list, err = book.List(ctx, "c1")
	require.NoError(t, err)
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
	assert.Equal(t, "office", list[0].Street)
}

func TestAddressBookSelectAddress(t *testing.T) {
	ctx := context.Background()
	book := app.NewAddressBook(memory.NewAddressRepository(), "")

	none, err := book.DefaultAddress(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = book.SelectAddress(ctx, "c1", "missing")
	assert.True(t, errors.Is(err, domain.ErrAddressNotFound))

	added, err := book.AddAddress(ctx, "c1", app.AddAddressInput{RecipientName: "A", Phone: "0712345678", Street: "S", City: "Nairobi"})
	require.NoError(t, err)

	_, err = book.SelectAddress(ctx, "c2", added.ID)
	assert.True(t, errors.Is(err, domain.ErrAddressNotFound), "addresses are scoped to their customer")

	got, err := book.SelectAddress(ctx, "c1", added.ID)
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)
}
