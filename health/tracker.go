package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/internal/utils"
	"github.com/rs/zerolog/log"
)

const maxErrorDetail = 300

// errStale aborts an update whose evidence no longer applies to the stored record.
var errStale = errors.New("stale outcome")

// Probe makes a cheap authenticated call with the given access token.
type Probe func(ctx context.Context, accessToken string) error

// RefreshOutcome is the result of one refresh attempt. It is never persisted
// on its own; Tracker.Record turns it into a mutation of the credential.
type RefreshOutcome struct {
	Key              credentials.Key
	UsedRefreshToken string
	Grant            *credentials.Grant // set on success
	ExpiresAt        time.Time          // resolved expiry for Grant
	Class            classifier.Class   // set on failure
	Err              error
}

func (o RefreshOutcome) Succeeded() bool {
	return o.Err == nil && o.Grant != nil
}

// Tracker is the only writer of a credential's health fields.
type Tracker struct {
	repo    credentials.Repo
	nowFunc func() time.Time
}

type TrackerOption func(*Tracker)

func WithNowFunc(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.nowFunc = now
	}
}

func NewTracker(repo credentials.Repo, options ...TrackerOption) (*Tracker, error) {
	if repo == nil {
		return nil, errors.New("[NewTracker] credentials repo is required")
	}
	t := &Tracker{
		repo:    repo,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// Record applies a refresh outcome to the stored credential.
//
//   - success: the grant is merged onto the current record and health restored
//   - Transient: nothing is written and (nil, nil) is returned
//   - AuthInvalid / Unknown: the record is kept and flagged unhealthy, unless
//     the refresh token used is no longer the stored one
func (t *Tracker) Record(ctx context.Context, o RefreshOutcome) (*credentials.Credential, error) {
	logger := log.With().Str("credential", o.Key.String()).Logger()

	if o.Succeeded() {
		now := t.nowFunc()
		updated, err := t.repo.Update(ctx, o.Key, func(c *credentials.Credential) error {
			return c.ApplyGrant(*o.Grant, o.ExpiresAt, now)
		})
		if err != nil {
			return nil, err
		}
		logger.Debug().Time("expires_at", updated.ExpiresAt).Msg("credential refreshed")
		return updated, nil
	}

	switch o.Class {
	case classifier.Transient:
		logger.Warn().Err(o.Err).Str("class", o.Class.String()).Msg("transient refresh failure, connection left healthy")
		return nil, nil
	case classifier.Unknown:
		logger.Error().Err(o.Err).Str("class", o.Class.String()).Msg("unclassified refresh failure, flagging connection")
	default:
		logger.Warn().Err(o.Err).Str("class", o.Class.String()).Msg("refresh rejected, connection needs reconnect")
	}

	message := ReconnectMessage(o.Key.Provider, o.Err)
	now := t.nowFunc()
	updated, err := t.repo.Update(ctx, o.Key, func(c *credentials.Credential) error {
		if c.RefreshToken != o.UsedRefreshToken {
			return errStale
		}
		c.MarkUnhealthy(message, now)
		return nil
	})
	if errors.Is(err, errStale) {
		logger.Debug().Msg("refresh token rotated by a concurrent refresh, ignoring failure")
		return t.repo.Get(ctx, o.Key)
	}
	return updated, err
}

// RecordSendFailure classifies an error returned by a provider API call made
// with usedAccessToken. Only AuthInvalid flags the connection: an unexplained
// send error says nothing about the credential.
func (t *Tracker) RecordSendFailure(ctx context.Context, key credentials.Key, usedAccessToken string, sendErr error) classifier.Class {
	class := classifier.Classify(sendErr)
	if class != classifier.AuthInvalid {
		return class
	}

	message := ReconnectMessage(key.Provider, sendErr)
	now := t.nowFunc()
	_, err := t.repo.Update(ctx, key, func(c *credentials.Credential) error {
		if c.AccessToken != usedAccessToken {
			return errStale
		}
		c.MarkUnhealthy(message, now)
		return nil
	})
	switch {
	case err == nil:
		log.Warn().Err(sendErr).Str("credential", key.String()).Msg("provider rejected access token, connection needs reconnect")
	case errors.Is(err, errStale), errors.Is(err, credentials.ErrNotFound):
	default:
		log.Error().Err(err).Str("credential", key.String()).Msg("failed to flag connection")
	}
	return class
}

// RecordAuthorized stores the grant from a completed authorization and marks
// the connection healthy. An existing record keeps its identity and, when the
// grant carries none, its refresh token. A missing or unreadable record is
// replaced by a new one.
func (t *Tracker) RecordAuthorized(ctx context.Context, key credentials.Key, grant credentials.Grant, expiresAt time.Time) (*credentials.Credential, error) {
	logger := log.With().Str("credential", key.String()).Logger()
	now := t.nowFunc()

	updated, err := t.repo.Update(ctx, key, func(c *credentials.Credential) error {
		return c.ApplyGrant(grant, expiresAt, now)
	})
	switch {
	case err == nil:
		logger.Info().Msg("integration reconnected")
		return updated, nil
	case !errors.Is(err, credentials.ErrNotFound) && !errors.Is(err, credentials.ErrCorrupt):
		return nil, err
	}

	c := &credentials.Credential{
		ID:        uuid.NewString(),
		UserID:    key.UserID,
		Provider:  key.Provider,
		ScopeKey:  key.ScopeKey,
		CreatedAt: now,
	}
	if err := c.ApplyGrant(grant, expiresAt, now); err != nil {
		return nil, err
	}
	if err := t.repo.Upsert(ctx, c); err != nil {
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}
	logger.Info().Msg("integration connected")
	return t.repo.Get(ctx, key)
}

// IsHealthy is false for missing, unreadable and flagged credentials.
func (t *Tracker) IsHealthy(ctx context.Context, key credentials.Key) bool {
	c, err := t.repo.Get(ctx, key)
	if err != nil {
		return false
	}
	return c.Healthy
}

// ReportRecovered runs probe with the stored access token and clears the error
// flag only if the probe succeeds. A probe rejected with AuthInvalid flags the
// connection; any probe error is returned.
func (t *Tracker) ReportRecovered(ctx context.Context, key credentials.Key, probe Probe) error {
	c, err := t.repo.Get(ctx, key)
	if err != nil {
		return err
	}

	if probeErr := probe(ctx, c.AccessToken); probeErr != nil {
		t.RecordSendFailure(ctx, key, c.AccessToken, probeErr)
		return fmt.Errorf("probe %s: %w", key, probeErr)
	}

	if c.Healthy {
		return nil
	}
	_, err = t.repo.Update(ctx, key, func(current *credentials.Credential) error {
		if current.AccessToken != c.AccessToken {
			return errStale
		}
		current.MarkHealthy()
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err == nil {
		log.Info().Str("credential", key.String()).Msg("connection recovered")
	}
	return err
}

// Describe summarises a connection for status screens.
func (t *Tracker) Describe(ctx context.Context, key credentials.Key) (Status, error) {
	c, err := t.repo.Get(ctx, key)
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return Status{State: StateNotConnected}, nil
	case errors.Is(err, credentials.ErrCorrupt):
		log.Error().Err(err).Str("credential", key.String()).Msg("unreadable credential")
		return Status{
			State:     StateNeedsAttention,
			LastError: ReconnectMessage(key.Provider, errors.New("stored credential is unreadable")),
		}, nil
	case err != nil:
		return Status{}, err
	}
	return StatusOf(c), nil
}

// ReconnectMessage is the user facing explanation stored on a flagged credential.
func ReconnectMessage(provider credentials.Provider, cause error) string {
	name := provider.DisplayName()
	msg := fmt.Sprintf("%s connection expired or was revoked. Please reconnect your %s account in Settings.", name, name)
	if cause != nil {
		msg += " (" + utils.Truncate(cause.Error(), maxErrorDetail) + ")"
	}
	return msg
}
