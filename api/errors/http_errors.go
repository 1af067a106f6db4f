package errors

import (
	"net/http"

	"github.com/SwiftFiat/SwiftFiat-Settlement/api/apistrings"
	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
)

// StatusCode maps a service error to the HTTP status reported to clients.
func StatusCode(err error) int {
	switch models.KindOf(err) {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindPayment:
		return http.StatusPaymentRequired
	case models.KindAuthentication:
		// The rail rejected our credentials, not the caller's.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing text for err. Internal failures are not
// described beyond a generic message.
func Message(err error) string {
	switch models.KindOf(err) {
	case models.KindValidation, models.KindNotFound, models.KindConflict:
		return err.Error()
	case models.KindPayment:
		return apistrings.PaymentFailed
	case models.KindAuthentication:
		return apistrings.ProviderUnavailable
	default:
		return apistrings.ServerError
	}
}
