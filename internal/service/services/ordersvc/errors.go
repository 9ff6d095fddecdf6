package ordersvc

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a non-creation command targets an order
	// with no events.
	ErrNotFound = errors.New("order not found")

	// ErrConflict is returned when appends kept losing races after all retries.
	ErrConflict = errors.New("order modified concurrently")
)

// StorageError is an event log failure with enough context for the caller
// to retry with the same expected seq.
type StorageError struct {
	Op          string
	OrderID     string
	ExpectedSeq int64
	Err         error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s order %s at seq %d: %v", e.Op, e.OrderID, e.ExpectedSeq, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
