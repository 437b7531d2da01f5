package errors

import (
	"errors"
	"fmt"
)

// Common error types for the integrations layer
var (
	// Credential errors
	ErrNotFound      = errors.New("not found")
	ErrCorrupt       = errors.New("corrupt credential")
	ErrInvalidKey    = errors.New("invalid credential key")
	ErrNoAccessToken = errors.New("credential has no access token")

	// Provider errors
	ErrProviderNotRegistered = errors.New("provider not registered")
	ErrNoRefreshToken        = errors.New("no refresh token on record")

	// Destination errors
	ErrUnresolved = errors.New("no destination could be resolved")

	// Locking
	ErrLockNotAcquired = errors.New("lock not acquired")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
