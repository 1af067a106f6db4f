package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/SwiftFiat/SwiftFiat-Settlement/api/apistrings"
	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeAndMessage(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", models.NewValidationError("amount must be positive"), http.StatusBadRequest, "amount must be positive"},
		{"not found", models.NewNotFoundError("wallet not found"), http.StatusNotFound, "wallet not found"},
		{"conflict", models.NewConflictError("payment already in progress"), http.StatusConflict, "payment already in progress"},
		{"payment", models.NewPaymentError("lightning", cause), http.StatusPaymentRequired, apistrings.PaymentFailed},
		{"authentication", models.NewAuthenticationError("mpesa token", cause), http.StatusBadGateway, apistrings.ProviderUnavailable},
		{"database", models.NewDatabaseError("insert failed", cause), http.StatusInternalServerError, apistrings.ServerError},
		{"plain", cause, http.StatusInternalServerError, apistrings.ServerError},
		{"wrapped", fmt.Errorf("initiate: %w", models.NewNotFoundError("wallet not found")), http.StatusNotFound, "initiate: wallet not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.status, StatusCode(tt.err))
			require.Equal(t, tt.message, Message(tt.err))
		})
	}
}
