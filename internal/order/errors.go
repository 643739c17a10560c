package order

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrEmptyCart         = errors.New("cart is empty")

	// ErrTransactionAborted means nothing was committed and the call may be retried.
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %d, available %d",
		e.ProductID, e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Retryable reports whether err leaves no effect behind and may be retried as is.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransactionAborted)
}
