package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/health"
	interrors "github.com/jrsteele09/go-integrations/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRefreshMargin   = 30 * time.Minute
	DefaultTokenLifetime   = time.Hour
	DefaultProviderTimeout = 20 * time.Second
)

// Refresher hands out access tokens that stay valid for at least the refresh
// margin, refreshing them through the provider when needed.
type Refresher struct {
	repo            credentials.Repo
	tracker         *health.Tracker
	locker          credentials.Locker
	providers       map[credentials.Provider]Provider
	refreshMargin   time.Duration
	defaultLifetime time.Duration
	providerTimeout time.Duration
	nowFunc         func() time.Time
}

type RefresherOption func(*Refresher)

func WithProvider(name credentials.Provider, p Provider) RefresherOption {
	return func(r *Refresher) {
		r.providers[name] = p
	}
}

func WithLocker(locker credentials.Locker) RefresherOption {
	return func(r *Refresher) {
		r.locker = locker
	}
}

func WithRefreshMargin(margin time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.refreshMargin = margin
	}
}

func WithDefaultLifetime(lifetime time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.defaultLifetime = lifetime
	}
}

func WithProviderTimeout(timeout time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.providerTimeout = timeout
	}
}

func WithNowFunc(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.nowFunc = now
	}
}

func NewRefresher(repo credentials.Repo, tracker *health.Tracker, options ...RefresherOption) (*Refresher, error) {
	if repo == nil {
		return nil, errors.New("[NewRefresher] credentials repo is required")
	}
	if tracker == nil {
		return nil, errors.New("[NewRefresher] health tracker is required")
	}

	r := &Refresher{
		repo:            repo,
		tracker:         tracker,
		providers:       make(map[credentials.Provider]Provider),
		refreshMargin:   DefaultRefreshMargin,
		defaultLifetime: DefaultTokenLifetime,
		providerTimeout: DefaultProviderTimeout,
		nowFunc:         time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.locker == nil {
		r.locker = credentials.NewMemoryLocker()
	}
	return r, nil
}

// EnsureFreshToken returns an access token for key, refreshing it first when
// it expires within the refresh margin. Every expected failure is returned as
// a *RefreshError; a stale unhealthy flag never prevents an attempt.
func (r *Refresher) EnsureFreshToken(ctx context.Context, key credentials.Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", &RefreshError{Key: key, Reason: ReasonNotConnected, Err: err}
	}

	c, err := r.load(ctx, key)
	if err != nil {
		return "", err
	}
	if !c.ExpiresWithin(r.refreshMargin, r.nowFunc()) {
		return c.AccessToken, nil
	}
	return r.refresh(ctx, key)
}

func (r *Refresher) refresh(ctx context.Context, key credentials.Key) (string, error) {
	unlock, err := r.locker.Lock(ctx, key)
	if err != nil {
		return "", &RefreshError{Key: key, Reason: ReasonTransient, Class: classifier.Transient, Err: fmt.Errorf("%w: %w", interrors.ErrLockNotAcquired, err)}
	}
	defer unlock()

	// Re-read under the lock: a concurrent refresh may already have rotated the tokens.
	c, err := r.load(ctx, key)
	if err != nil {
		return "", err
	}
	if !c.ExpiresWithin(r.refreshMargin, r.nowFunc()) {
		return c.AccessToken, nil
	}

	provider, ok := r.providers[key.Provider]
	if !ok {
		log.Error().Str("credential", key.String()).Msg("no refresh provider registered")
		return "", &RefreshError{Key: key, Reason: ReasonNeedsReconnect, Class: classifier.Unknown, Err: interrors.ErrProviderNotRegistered}
	}

	outcome := health.RefreshOutcome{Key: key, UsedRefreshToken: c.RefreshToken}
	if c.RefreshToken == "" {
		outcome.Err, outcome.Class = interrors.ErrNoRefreshToken, classifier.AuthInvalid
	} else {
		callCtx, cancel := context.WithTimeout(ctx, r.providerTimeout)
		grant, callErr := provider.Refresh(callCtx, c.RefreshToken, c.GrantedScopes)
		cancel()

		if callErr == nil && (grant == nil || grant.AccessToken == "") {
			callErr = interrors.ErrNoAccessToken
		}
		if callErr != nil {
			outcome.Err, outcome.Class = callErr, classifier.Classify(callErr)
		} else {
			outcome.Grant = grant
			outcome.ExpiresAt = expiryFor(grant, r.nowFunc(), r.defaultLifetime)
		}
	}

	// The provider call has returned; finish the write even if the caller has gone away.
	updated, recordErr := r.tracker.Record(context.WithoutCancel(ctx), outcome)

	if outcome.Err != nil {
		if recordErr != nil {
			log.Error().Err(recordErr).Str("credential", key.String()).Msg("failed to record refresh failure")
		}
		reason := ReasonNeedsReconnect
		if outcome.Class == classifier.Transient {
			reason = ReasonTransient
		}
		return "", &RefreshError{Key: key, Reason: reason, Class: outcome.Class, Err: outcome.Err}
	}

	if recordErr != nil {
		if errors.Is(recordErr, credentials.ErrNotFound) {
			// disconnected while the refresh was in flight
			return "", &RefreshError{Key: key, Reason: ReasonNotConnected, Err: recordErr}
		}
		log.Error().Err(recordErr).Str("credential", key.String()).Msg("failed to store refreshed credential")
		return "", &RefreshError{Key: key, Reason: ReasonTransient, Class: classifier.Transient, Err: recordErr}
	}
	return updated.AccessToken, nil
}

func (r *Refresher) load(ctx context.Context, key credentials.Key) (*credentials.Credential, error) {
	c, err := r.repo.Get(ctx, key)
	switch {
	case err == nil:
		if verr := c.Validate(); verr != nil {
			log.Error().Err(verr).Str("credential", key.String()).Msg("stored credential is malformed")
			return nil, &RefreshError{Key: key, Reason: ReasonNeedsReconnect, Class: classifier.Unknown, Err: verr}
		}
		return c, nil
	case errors.Is(err, credentials.ErrNotFound):
		return nil, &RefreshError{Key: key, Reason: ReasonNotConnected, Err: err}
	case errors.Is(err, credentials.ErrCorrupt):
		log.Error().Err(err).Str("credential", key.String()).Msg("stored credential is unreadable")
		return nil, &RefreshError{Key: key, Reason: ReasonNeedsReconnect, Class: classifier.Unknown, Err: err}
	default:
		log.Warn().Err(err).Str("credential", key.String()).Msg("credential store unavailable")
		return nil, &RefreshError{Key: key, Reason: ReasonTransient, Class: classifier.Transient, Err: err}
	}
}

// ExpiresAt is the expiry the refresher would store for g, using the same
// fallbacks as a refresh.
func (r *Refresher) ExpiresAt(g *credentials.Grant) time.Time {
	return expiryFor(g, r.nowFunc(), r.defaultLifetime)
}
