package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-integrations/credentials"
)

// expiryFor never returns a zero time: provider expiry, then the exp claim of a
// JWT access token, then the default lifetime.
func expiryFor(g *credentials.Grant, now time.Time, defaultLifetime time.Duration) time.Time {
	if !g.Expiry.IsZero() {
		return g.Expiry
	}
	if g.ExpiresIn > 0 {
		return now.Add(g.ExpiresIn)
	}
	if exp, ok := jwtExpiry(g.AccessToken); ok && exp.After(now) {
		return exp
	}
	return now.Add(defaultLifetime)
}

// jwtExpiry reads exp without verifying the signature; the value only schedules
// the next refresh.
func jwtExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
