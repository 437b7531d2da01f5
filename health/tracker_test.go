package health_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/credentials"
	credentialrepofake "github.com/jrsteele09/go-integrations/credentials/repofake"
	"github.com/jrsteele09/go-integrations/health"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	testKey = credentials.Key{UserID: "user-1", Provider: credentials.ProviderSlack, ScopeKey: "client-42"}
)

type statusErr int

func (e statusErr) Error() string   { return http.StatusText(int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func setupTracker(t *testing.T) (*health.Tracker, *credentialrepofake.FakeCredentialRepo) {
	t.Helper()
	repo := credentialrepofake.NewFakeCredentialRepo()
	tracker, err := health.NewTracker(repo, health.WithNowFunc(func() time.Time { return testNow }))
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(context.Background(), &credentials.Credential{
		UserID:            testKey.UserID,
		Provider:          testKey.Provider,
		ScopeKey:          testKey.ScopeKey,
		AccessToken:       "xoxe-1",
		RefreshToken:      "xoxr-1",
		ExpiresAt:         testNow.Add(time.Hour),
		AccountIdentifier: "Acme Workspace",
		Healthy:           true,
	}))
	return tracker, repo
}

func stored(t *testing.T, repo credentials.Repo) *credentials.Credential {
	t.Helper()
	c, err := repo.Get(context.Background(), testKey)
	require.NoError(t, err)
	return c
}

func TestNewTracker_RequiresRepo(t *testing.T) {
	_, err := health.NewTracker(nil)
	require.Error(t, err)
}

func TestTracker_Record(t *testing.T) {
	t.Run("success merges the grant", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		updated, err := tracker.Record(context.Background(), health.RefreshOutcome{
			Key:              testKey,
			UsedRefreshToken: "xoxr-1",
			Grant:            &credentials.Grant{AccessToken: "xoxe-2", Scopes: []string{"chat:write"}},
			ExpiresAt:        testNow.Add(12 * time.Hour),
		})
		require.NoError(t, err)
		require.Equal(t, "xoxe-2", updated.AccessToken)
		require.Equal(t, "xoxr-1", updated.RefreshToken)
		require.Equal(t, []string{"chat:write"}, stored(t, repo).GrantedScopes)
	})

	t.Run("transient writes nothing", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		updated, err := tracker.Record(context.Background(), health.RefreshOutcome{
			Key:              testKey,
			UsedRefreshToken: "xoxr-1",
			Class:            classifier.Transient,
			Err:              statusErr(http.StatusServiceUnavailable),
		})
		require.NoError(t, err)
		require.Nil(t, updated)
		require.True(t, stored(t, repo).Healthy)
	})

	t.Run("auth failure flags the record", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		updated, err := tracker.Record(context.Background(), health.RefreshOutcome{
			Key:              testKey,
			UsedRefreshToken: "xoxr-1",
			Class:            classifier.AuthInvalid,
			Err:              errors.New("invalid_refresh_token"),
		})
		require.NoError(t, err)
		require.False(t, updated.Healthy)
		require.Contains(t, updated.LastErrorMessage, "Please reconnect your Slack account")
		require.Equal(t, "xoxe-1", stored(t, repo).AccessToken)
	})

	t.Run("failure for a rotated refresh token is ignored", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		_, err := repo.Update(context.Background(), testKey, func(c *credentials.Credential) error {
			c.RefreshToken = "xoxr-2"
			return nil
		})
		require.NoError(t, err)

		updated, err := tracker.Record(context.Background(), health.RefreshOutcome{
			Key:              testKey,
			UsedRefreshToken: "xoxr-1",
			Class:            classifier.AuthInvalid,
			Err:              errors.New("invalid_grant"),
		})
		require.NoError(t, err)
		require.True(t, updated.Healthy)
		require.True(t, stored(t, repo).Healthy)
	})
}

func TestTracker_RecordAuthorized(t *testing.T) {
	t.Run("reauthorizing keeps identity and clears the flag", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		_, err := repo.Update(context.Background(), testKey, func(c *credentials.Credential) error {
			c.MarkUnhealthy("Slack connection expired or was revoked.", testNow.Add(-time.Hour))
			return nil
		})
		require.NoError(t, err)
		before := stored(t, repo)

		c, err := tracker.RecordAuthorized(context.Background(), testKey, credentials.Grant{AccessToken: "xoxe-2"}, testNow.Add(12*time.Hour))
		require.NoError(t, err)

		require.Equal(t, before.ID, c.ID)
		require.Equal(t, "xoxe-2", c.AccessToken)
		require.Equal(t, "xoxr-1", c.RefreshToken)
		require.True(t, c.Healthy)
		require.Empty(t, c.LastErrorMessage)
		require.Nil(t, c.LastErrorAt)
	})

	t.Run("first authorization creates the record", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		key := credentials.Key{UserID: "user-2", Provider: credentials.ProviderMicrosoft}

		c, err := tracker.RecordAuthorized(context.Background(), key, credentials.Grant{AccessToken: "eyA", RefreshToken: "R"}, testNow.Add(time.Hour))
		require.NoError(t, err)

		require.NotEmpty(t, c.ID)
		require.True(t, c.Healthy)
		require.Equal(t, testNow, c.CreatedAt)
		require.Equal(t, 2, repo.Len())
	})

	t.Run("grant without an access token writes nothing", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		key := credentials.Key{UserID: "user-2", Provider: credentials.ProviderMicrosoft}

		_, err := tracker.RecordAuthorized(context.Background(), key, credentials.Grant{}, testNow.Add(time.Hour))
		require.Error(t, err)
		require.Equal(t, 1, repo.Len())
	})
}

func TestTracker_RecordSendFailure(t *testing.T) {
	t.Run("revoked token flags health", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		class := tracker.RecordSendFailure(context.Background(), testKey, "xoxe-1", errors.New("token_revoked"))
		require.Equal(t, classifier.AuthInvalid, class)
		require.False(t, stored(t, repo).Healthy)
	})

	t.Run("rate limit does not", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		class := tracker.RecordSendFailure(context.Background(), testKey, "xoxe-1", statusErr(http.StatusTooManyRequests))
		require.Equal(t, classifier.Transient, class)
		require.True(t, stored(t, repo).Healthy)
	})

	t.Run("unexplained send error does not", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		class := tracker.RecordSendFailure(context.Background(), testKey, "xoxe-1", errors.New("channel_not_found"))
		require.Equal(t, classifier.Unknown, class)
		require.True(t, stored(t, repo).Healthy)
	})

	t.Run("token already replaced", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		tracker.RecordSendFailure(context.Background(), testKey, "xoxe-old", errors.New("invalid_auth"))
		require.True(t, stored(t, repo).Healthy)
	})
}

func TestTracker_ReportRecovered(t *testing.T) {
	flag := func(t *testing.T, tracker *health.Tracker) {
		t.Helper()
		tracker.RecordSendFailure(context.Background(), testKey, "xoxe-1", errors.New("invalid_auth"))
		require.False(t, tracker.IsHealthy(context.Background(), testKey))
	}

	t.Run("successful probe clears the flag", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		flag(t, tracker)

		var probed string
		err := tracker.ReportRecovered(context.Background(), testKey, func(_ context.Context, accessToken string) error {
			probed = accessToken
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, "xoxe-1", probed)

		c := stored(t, repo)
		require.True(t, c.Healthy)
		require.Empty(t, c.LastErrorMessage)
		require.Nil(t, c.LastErrorAt)
	})

	t.Run("failed probe keeps the flag", func(t *testing.T) {
		tracker, _ := setupTracker(t)
		flag(t, tracker)

		err := tracker.ReportRecovered(context.Background(), testKey, func(context.Context, string) error {
			return statusErr(http.StatusBadGateway)
		})
		require.Error(t, err)
		require.False(t, tracker.IsHealthy(context.Background(), testKey))
	})

	t.Run("auth rejection during probe flags a healthy record", func(t *testing.T) {
		tracker, _ := setupTracker(t)
		err := tracker.ReportRecovered(context.Background(), testKey, func(context.Context, string) error {
			return errors.New("account_inactive")
		})
		require.Error(t, err)
		require.False(t, tracker.IsHealthy(context.Background(), testKey))
	})

	t.Run("missing credential", func(t *testing.T) {
		tracker, repo := setupTracker(t)
		require.NoError(t, repo.Delete(context.Background(), testKey))
		err := tracker.ReportRecovered(context.Background(), testKey, func(context.Context, string) error { return nil })
		require.ErrorIs(t, err, credentials.ErrNotFound)
	})
}

func TestTracker_Describe(t *testing.T) {
	tracker, repo := setupTracker(t)

	status, err := tracker.Describe(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, health.StateConnected, status.State)
	require.True(t, status.Connected)
	require.Equal(t, "Acme Workspace", status.AccountIdentifier)
	require.Empty(t, status.LastError)

	tracker.RecordSendFailure(context.Background(), testKey, "xoxe-1", errors.New("token_revoked"))
	status, err = tracker.Describe(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, health.StateNeedsAttention, status.State)
	require.False(t, status.Connected)
	require.NotEmpty(t, status.LastError)
	require.NotNil(t, status.LastErrorAt)

	require.NoError(t, repo.Delete(context.Background(), testKey))
	status, err = tracker.Describe(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, health.StateNotConnected, status.State)
	require.False(t, tracker.IsHealthy(context.Background(), testKey))
}
