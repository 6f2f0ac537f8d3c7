package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrValidation   = errors.New("validation")   // 400
	ErrUnauthorized = errors.New("unauthorized") // 401
	ErrForbidden    = errors.New("forbidden")    // 403
	ErrNotFound     = errors.New("not found")    // 404
	ErrConflict     = errors.New("conflict")     // 400 unless idempotent
	ErrUpstream     = errors.New("upstream")     // 500
)

// ValidationError is a client-visible rejection. ProductIDs lists the
// offending products for catalog related failures.
type ValidationError struct {
	Reason     string
	ProductIDs []string
}

func (e *ValidationError) Error() string {
	if len(e.ProductIDs) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.ProductIDs, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
