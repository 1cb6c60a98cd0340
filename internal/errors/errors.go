package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the token, login, tenant and isolation layers.
var (
	// Token errors
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")

	// Login errors
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountLocked        = errors.New("account locked")
	ErrUnsupportedLoginType = errors.New("unsupported login type")
	ErrVerifierUnavailable  = errors.New("identity verifier unavailable")

	// Authorization and tenancy errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrTenantMissing    = errors.New("tenant missing")
	ErrTenantNotFound   = errors.New("tenant not found")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
)

// New returns an error with the given text.
func New(text string) error {
	return errors.New(text)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
