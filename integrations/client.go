package integrations

import (
	"context"

	"github.com/jrsteele09/go-integrations/providers"
)

// Client is a provider API client bound to one access token.
type Client interface {
	Send(ctx context.Context, target string, payload providers.Payload) (*providers.Receipt, error)
	Probe(ctx context.Context) error
}

// ClientFactory builds a Client for a freshly validated access token.
type ClientFactory func(accessToken string) (Client, error)
