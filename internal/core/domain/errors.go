package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrNetwork           = errors.New("network failure")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrPartialFailure    = errors.New("partial failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
