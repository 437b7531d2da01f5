package token

import (
	"context"

	"github.com/jrsteele09/go-integrations/credentials"
)

// Provider calls a provider's OAuth token endpoint with a refresh token.
// Implementations return the provider's error unmodified so it can be classified.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string, scopes []string) (*credentials.Grant, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, refreshToken string, scopes []string) (*credentials.Grant, error)

func (f ProviderFunc) Refresh(ctx context.Context, refreshToken string, scopes []string) (*credentials.Grant, error) {
	return f(ctx, refreshToken, scopes)
}
