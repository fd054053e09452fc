package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
	"github.com/tifstore/topup-orders/internal/domain/order"
)

// Error codes carried in the "error" field of error responses.
const (
	codeProductNotFound      = "ProductNotFound"
	codeInvalidPaymentMethod = "InvalidPaymentMethod"
	codeInvalidRequest       = "InvalidRequest"
	codePersistenceFailure   = "PersistenceFailure"
	codeUnauthorized         = "Unauthorized"
	codeInvalidTransition    = "InvalidTransition"
	codeOrderNotFound        = "OrderNotFound"
	codeInternal             = "Internal"
)

// mapOrderError converts domain errors to an HTTP status and error code.
func mapOrderError(err error) (int, string) {
	var (
		reqErr     *order.InvalidRequestError
		transErr   *order.TransitionError
		persistErr *order.PersistenceError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, codeProductNotFound
	case errors.Is(err, order.ErrInvalidPaymentMethod):
		return http.StatusUnprocessableEntity, codeInvalidPaymentMethod
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, codeOrderNotFound
	case errors.As(err, &transErr), errors.Is(err, order.ErrStaleStatus):
		return http.StatusConflict, codeInvalidTransition
	case errors.As(err, &persistErr):
		return http.StatusServiceUnavailable, codePersistenceFailure
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
