// Package services contains the business logic between the HTTP handlers
// and the repositories: tank CRUD plus derived dashboard views, and the
// credential/token lifecycle.
package services

import (
	"errors"
	"fmt"

	"github.com/aquamind/go-tank-backend/internal/repo"
)

var (
	// ErrNotFound mirrors the repo sentinel so handlers depend on one package.
	ErrNotFound = repo.ErrNotFound

	// ErrEmailExists rejects registration with an already-registered email.
	ErrEmailExists = errors.New("user with this email already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password, so
	// responses cannot be used to probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken covers malformed, unsigned and expired bearer tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
