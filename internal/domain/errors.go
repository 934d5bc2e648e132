package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is fixed where an error is created and never inferred later.
type ErrorKind string

const (
	ErrorKindBenign   ErrorKind = "benign"
	ErrorKindInternal ErrorKind = "internal"
)

// Error is the tagged error used across the request pipeline. Benign errors
// carry a user-facing message; internal errors are masked before leaving the
// process.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Benign(message string) *Error {
	return &Error{Kind: ErrorKindBenign, Message: message}
}

func BenignWrap(message string, err error) *Error {
	return &Error{Kind: ErrorKindBenign, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: ErrorKindInternal, Message: message, Err: err}
}

// AsBenign returns the benign error in err's chain, if any.
func AsBenign(err error) (*Error, bool) {
	var dErr *Error
	if errors.As(err, &dErr) && dErr.Kind == ErrorKindBenign {
		return dErr, true
	}
	return nil, false
}

var (
	ErrNoCookie             = Benign("Access denied. No cookie provided.")
	ErrCookieNoLongerValid  = Benign("Access denied. Cookie is no longer valid.")
	ErrNotEnoughPermissions = Benign("Access denied. Not enough permissions.")
	ErrEmailNotProvided     = Benign("Email was not provided.")
	ErrInvalidCredentials   = Benign("Invalid email or password.")
	ErrUserNotFound         = Benign("User not found.")
)
