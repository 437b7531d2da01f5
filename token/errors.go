package token

import (
	"errors"
	"fmt"

	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/credentials"
)

// Reason is why EnsureFreshToken could not hand out a token.
type Reason string

const (
	// ReasonNotConnected: no credential on record; the user must authorize.
	ReasonNotConnected Reason = "not_connected"
	// ReasonTransient: safe to retry later, connection health unaffected.
	ReasonTransient Reason = "transient"
	// ReasonNeedsReconnect: the grant was rejected; the record is flagged and kept.
	ReasonNeedsReconnect Reason = "needs_reconnect"
)

// RefreshError is the only error type EnsureFreshToken returns.
type RefreshError struct {
	Key    credentials.Key
	Reason Reason
	Class  classifier.Class // classification of Err when it came from the provider
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Reason, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the Reason from an error returned by EnsureFreshToken.
func ReasonOf(err error) (Reason, bool) {
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		return refreshErr.Reason, true
	}
	return "", false
}
