// ABOUTME: Service-level errors: not-found and input validation.
// ABOUTME: Authorization errors come from the access and billing packages unchanged.
package crm

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the target record does not exist in the
// caller's organization.
var ErrNotFound = errors.New("not found")

// ValidationError reports unusable input. Message is shown to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation reports whether err is a *ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// found converts the store's (nil, nil) not-found convention.
func found[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// affected converts a store (bool, error) result.
func affected(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
