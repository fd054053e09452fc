package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidPaymentMethod is returned for payment methods outside the
	// configured allow-list.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrOrderNumberConflict is returned by repositories when an order number
	// is already in use. The service retries with a fresh number.
	ErrOrderNumberConflict = errors.New("order number already exists")
	// ErrStaleStatus is returned when an order's status changed concurrently.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Is matches catalog.ErrProductNotFound.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == catalog.ErrProductNotFound
}

// InvalidRequestError indicates a missing or malformed request field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a storage failure. No partial order state exists
// when it is returned, so the whole operation may be retried.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist order: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransitionError indicates a status change the order lifecycle forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is %s and accepts no further transitions", e.From)
	}
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
