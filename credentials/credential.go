package credentials

import (
	"fmt"
	"strings"
	"time"

	interrors "github.com/jrsteele09/go-integrations/internal/errors"
	"github.com/jrsteele09/go-integrations/internal/utils"
)

var (
	ErrNotFound = interrors.ErrNotFound
	ErrCorrupt  = interrors.ErrCorrupt
)

// Provider names an external OAuth service.
type Provider string

const (
	ProviderMicrosoft Provider = "microsoft"
	ProviderSlack     Provider = "slack"
)

func (p Provider) String() string {
	return string(p)
}

// DisplayName is used in user facing messages.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderMicrosoft:
		return "Microsoft"
	case ProviderSlack:
		return "Slack"
	}
	if p == "" {
		return "Integration"
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Key identifies exactly one credential record. ScopeKey is optional and
// distinguishes several connections of the same provider for one user
// (e.g. one chat workspace per client).
type Key struct {
	UserID   string
	Provider Provider
	ScopeKey string
}

func (k Key) String() string {
	if k.ScopeKey == "" {
		return fmt.Sprintf("%s/%s", k.Provider, k.UserID)
	}
	return fmt.Sprintf("%s/%s/%s", k.Provider, k.UserID, k.ScopeKey)
}

func (k Key) Validate() error {
	if k.UserID == "" {
		return interrors.Wrapf(interrors.ErrInvalidKey, "user id is required")
	}
	if k.Provider == "" {
		return interrors.Wrapf(interrors.ErrInvalidKey, "provider is required")
	}
	return nil
}

// Credential is the stored OAuth token pair plus connection metadata for one Key.
type Credential struct {
	ID                string
	UserID            string
	Provider          Provider
	ScopeKey          string
	AccessToken       string
	RefreshToken      string // Never overwritten with an empty value once issued
	ExpiresAt         time.Time
	GrantedScopes     []string
	AccountIdentifier string // Display email or team name
	Healthy           bool
	LastErrorMessage  string
	LastErrorAt       *time.Time
	LastRefreshedAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Grant is what a provider token endpoint returned. Expiry is absolute when the
// provider library computed it, ExpiresIn relative otherwise; both zero means
// the provider did not say.
type Grant struct {
	AccessToken       string
	RefreshToken      string
	Expiry            time.Time
	ExpiresIn         time.Duration
	Scopes            []string
	AccountIdentifier string
}

func (c *Credential) Key() Key {
	return Key{UserID: c.UserID, Provider: c.Provider, ScopeKey: c.ScopeKey}
}

func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	cp.GrantedScopes = append([]string(nil), c.GrantedScopes...)
	if c.LastErrorAt != nil {
		cp.LastErrorAt = utils.Ptr(*c.LastErrorAt)
	}
	if c.LastRefreshedAt != nil {
		cp.LastRefreshedAt = utils.Ptr(*c.LastRefreshedAt)
	}
	return &cp
}

// Validate reports structurally unusable records as ErrCorrupt.
func (c *Credential) Validate() error {
	if err := c.Key().Validate(); err != nil {
		return interrors.Wrapf(ErrCorrupt, "%v", err)
	}
	if c.AccessToken == "" {
		return interrors.Wrapf(ErrCorrupt, "%s: %v", c.Key(), interrors.ErrNoAccessToken)
	}
	return nil
}

// ExpiresWithin reports whether the access token expires before now+margin.
// A zero ExpiresAt is treated as already expired.
func (c *Credential) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now.Add(margin))
}

// ApplyGrant copies a successful token response onto the record and clears any
// error flag. The refresh token, scopes and account identifier are only
// replaced when the response carries them.
func (c *Credential) ApplyGrant(g Grant, expiresAt, now time.Time) error {
	if g.AccessToken == "" {
		return interrors.ErrNoAccessToken
	}
	if expiresAt.IsZero() {
		return fmt.Errorf("expiry must be set")
	}
	c.AccessToken = g.AccessToken
	if g.RefreshToken != "" {
		c.RefreshToken = g.RefreshToken
	}
	c.ExpiresAt = expiresAt
	if scopes := utils.NormalizeScopes(g.Scopes); len(scopes) > 0 {
		c.GrantedScopes = scopes
	}
	if g.AccountIdentifier != "" {
		c.AccountIdentifier = g.AccountIdentifier
	}
	c.LastRefreshedAt = utils.Ptr(now)
	c.markHealthy()
	return nil
}

// MarkUnhealthy flags the connection as needing attention. Tokens are left untouched.
func (c *Credential) MarkUnhealthy(message string, at time.Time) {
	c.Healthy = false
	c.LastErrorMessage = message
	c.LastErrorAt = utils.Ptr(at)
}

// MarkHealthy clears the error flag after a positive confirmation.
func (c *Credential) MarkHealthy() {
	c.markHealthy()
}

func (c *Credential) markHealthy() {
	c.Healthy = true
	c.LastErrorMessage = ""
	c.LastErrorAt = nil
}
