package service

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentNotFound is returned when no payment exists for the given
	// id or gateway reference.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidState is returned when the requested transition is not
	// permitted from the payment's current status.
	ErrInvalidState = errors.New("operation not permitted in current payment status")
)

// GatewayError wraps a failed or unexpected gateway response.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
