package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "missing order",
			err:        ports.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
			wantError:  "not found",
		},
		{
			name:       "missing record of another kind is not reported as an order",
			err:        fmt.Errorf("load idempotency key: %w", ports.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
			wantError:  "not found",
		},
		{
			name:       "unknown product",
			err:        fmt.Errorf("%w: ghost", domain.ErrProductNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "product_not_found",
			wantError:  "product not found: ghost",
		},
		{
			name:       "unexpected error is hidden",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal",
			wantError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := classify(tt.err)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}
