package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session kit
var (
	// Credential errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or revoked refresh token")

	// One-time code errors
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// Registry errors
	ErrNoStoredCredential = errors.New("no stored credential for account")
	ErrUnknownAccount     = errors.New("account not in registry")

	// Transport errors
	ErrProviderUnavailable = errors.New("auth provider unavailable")

	// Callback errors
	ErrFlowAbandoned = errors.New("callback flow abandoned")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyNotFound        = errors.New("key not found")
)

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
