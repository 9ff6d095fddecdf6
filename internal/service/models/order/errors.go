package order

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a rejected command.
type ErrorCode string

const (
	CodeInvalidCommand   ErrorCode = "invalid_command"
	CodeAlreadyCreated   ErrorCode = "already_created"
	CodeNotCreated       ErrorCode = "not_created"
	CodeDuplicateLine    ErrorCode = "duplicate_line"
	CodeLineNotFound     ErrorCode = "line_not_found"
	CodeAlreadyConfirmed ErrorCode = "already_confirmed"
	CodeNotConfirmed     ErrorCode = "not_confirmed"
	CodeAlreadyShipped   ErrorCode = "already_shipped"
)

var (
	ErrInvalidCommand   = errors.New("invalid command")
	ErrAlreadyCreated   = errors.New("order already created")
	ErrNotCreated       = errors.New("order not created")
	ErrDuplicateLine    = errors.New("product already in order")
	ErrLineNotFound     = errors.New("product not in order")
	ErrAlreadyConfirmed = errors.New("order already confirmed")
	ErrNotConfirmed     = errors.New("order not confirmed")
	ErrAlreadyShipped   = errors.New("order already shipped")
)

// Replay failures. These indicate a corrupt or out of order stream.
var (
	ErrSequenceGap  = errors.New("event sequence gap")
	ErrWrongOrder   = errors.New("event belongs to another order")
	ErrInvalidEvent = errors.New("event not applicable to order state")
)

// ValidationError is a command rejected by the order's business rules.
type ValidationError struct {
	Code      ErrorCode
	OrderID   string
	ProductID string
	Err       error
}

func (e *ValidationError) Error() string {
	switch {
	case e.ProductID != "":
		return fmt.Sprintf("order %s, product %s: %v", e.OrderID, e.ProductID, e.Err)
	case e.OrderID != "":
		return fmt.Sprintf("order %s: %v", e.OrderID, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a rejected command.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

func reject(code ErrorCode, err error, orderID, productID string) error {
	return &ValidationError{Code: code, OrderID: orderID, ProductID: productID, Err: err}
}
