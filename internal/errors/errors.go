package errors

import (
	"errors"
	"fmt"
)

// Common internal errors shared by the session stores and the OAuth client
var (
	// Session store errors
	ErrMissingResourceID  = errors.New("missing resource id")
	ErrMissingAccessToken = errors.New("missing access token")
	ErrStoreNotConnected  = errors.New("session store not connected")
	ErrMissingDSN         = errors.New("missing database dsn")

	// Sealing errors
	ErrInvalidSealKey = errors.New("invalid seal key")
	ErrUnsealFailed   = errors.New("unable to unseal value")

	// Exchange errors
	ErrMissingClientCredentials = errors.New("missing client id or client secret")
	ErrMissingRefreshToken      = errors.New("missing refresh token")
	ErrUnexpectedStatus         = errors.New("unexpected status from token endpoint")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...any) error {
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
func As(err error, target any) bool {
	return errors.As(err, target)
}
