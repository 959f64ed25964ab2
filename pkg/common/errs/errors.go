// Package errs holds the error kinds the HTTP boundary maps onto status
// codes: validation failures become 400, per-package not-found sentinels
// become 404, everything else 500.
package errs

import "errors"

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func NewValidation(msg string) error {
	return ValidationError{reason: errors.New(msg)}
}

func WrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return ValidationError{reason: err}
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
