package health

import (
	"time"

	"github.com/jrsteele09/go-integrations/credentials"
)

type State string

const (
	StateConnected      State = "connected"
	StateNeedsAttention State = "needs_attention"
	StateNotConnected   State = "not_connected"
)

// Status is what settings screens show for one connection.
type Status struct {
	State             State      `json:"state"`
	Connected         bool       `json:"connected"`
	ScopeKey          string     `json:"scope_key,omitempty"`
	AccountIdentifier string     `json:"account_identifier,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	LastErrorAt       *time.Time `json:"last_error_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	LastRefreshedAt   *time.Time `json:"last_refreshed_at,omitempty"`
}

func StatusOf(c *credentials.Credential) Status {
	s := Status{
		State:             StateConnected,
		Connected:         true,
		ScopeKey:          c.ScopeKey,
		AccountIdentifier: c.AccountIdentifier,
		LastRefreshedAt:   c.LastRefreshedAt,
	}
	if !c.ExpiresAt.IsZero() {
		expires := c.ExpiresAt
		s.ExpiresAt = &expires
	}
	if !c.Healthy {
		s.State = StateNeedsAttention
		s.Connected = false
		s.LastError = c.LastErrorMessage
		s.LastErrorAt = c.LastErrorAt
	}
	return s
}
