package integrations

import (
	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/destinations"
	"github.com/jrsteele09/go-integrations/providers"
	"github.com/jrsteele09/go-integrations/token"
)

type Status string

const (
	StatusOK             Status = "ok"
	StatusDelivered      Status = "delivered"
	StatusUnresolved     Status = "unresolved"
	StatusNotConnected   Status = "not_connected"
	StatusTransient      Status = "transient"
	StatusNeedsReconnect Status = "needs_reconnect"
	StatusFailed         Status = "failed"
)

// Retryable reports whether a later attempt may succeed without user action.
func (s Status) Retryable() bool {
	return s == StatusTransient
}

// ClientResult is the outcome of WithClient.
type ClientResult struct {
	Key    credentials.Key
	Status Status
	Class  classifier.Class
	Err    error
}

func (r ClientResult) OK() bool {
	return r.Status == StatusOK
}

type DeliveryRequest struct {
	UserID   string                    `json:"user_id"`
	Category destinations.Category     `json:"category"`
	Payload  providers.Payload         `json:"payload"`
	Explicit *destinations.Destination `json:"explicit,omitempty"`
	ScopeKey string                    `json:"scope_key,omitempty"`
}

type DeliveryResult struct {
	Status           Status                   `json:"status"`
	Destination      destinations.Destination `json:"destination"`
	Receipt          *providers.Receipt       `json:"receipt,omitempty"`
	UsedSystemClient bool                     `json:"used_system_client,omitempty"`
	Err              error                    `json:"-"`
}

// ErrorMessage is the failure text, empty when delivered.
func (r DeliveryResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func statusForReason(reason token.Reason) Status {
	switch reason {
	case token.ReasonNotConnected:
		return StatusNotConnected
	case token.ReasonTransient:
		return StatusTransient
	default:
		return StatusNeedsReconnect
	}
}

// statusForSendClass maps a send failure. Unknown send errors (a missing
// channel, a bad recipient) are failures of the message, not the connection.
func statusForSendClass(class classifier.Class) Status {
	switch class {
	case classifier.AuthInvalid:
		return StatusNeedsReconnect
	case classifier.Transient:
		return StatusTransient
	default:
		return StatusFailed
	}
}
