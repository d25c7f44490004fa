package domain_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

func TestPlanDecrementInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("stock never goes negative and nothing is reserved twice", prop.ForAll(
		func(current, quantity int) bool {
			adj := domain.PlanDecrement(domain.StockDecrement{OrderID: "o1", ProductID: "p1", Quantity: quantity}, current, time.Time{})

			available := current
			if available < 0 {
				available = 0
			}
			if adj.RemainingStock < 0 || adj.Reserved < 0 {
				return false
			}
			if adj.Reserved > available || (quantity >= 0 && adj.Reserved > quantity) {
				return false
			}
			if adj.Reserved+adj.RemainingStock != available {
				return false
			}
			return adj.Clamped() == (adj.Reserved < quantity)
		},
		gen.IntRange(-10, 50),
		gen.IntRange(-2, 60),
	))

	properties.TestingRun(t)
}
