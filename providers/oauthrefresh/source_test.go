package oauthrefresh_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/providers/oauthrefresh"
	"github.com/jrsteele09/go-integrations/providers/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testFixture struct {
	server *httptest.Server
	source *oauthrefresh.Source
	calls  *atomic.Int32
	forms  chan map[string]string
}

func setupTestFixture(t *testing.T, status int, response map[string]interface{}, options ...oauthrefresh.Option) *testFixture {
	t.Helper()
	calls := &atomic.Int32{}
	forms := make(chan map[string]string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		forms <- map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"refresh_token": r.PostForm.Get("refresh_token"),
			"client_id":     r.PostForm.Get("client_id"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	source, err := oauthrefresh.New(cfg, options...)
	require.NoError(t, err)
	return &testFixture{server: server, source: source, calls: calls, forms: forms}
}

func TestRefresh(t *testing.T) {
	t.Run("Returns the new access token and rotated refresh token", func(t *testing.T) {
		f := setupTestFixture(t, http.StatusOK, map[string]interface{}{
			"access_token":  "A2",
			"refresh_token": "R2",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "chat:write users:read",
		})

		before := time.Now()
		grant, err := f.source.Refresh(context.Background(), "R1", nil)
		require.NoError(t, err)

		assert.Equal(t, "A2", grant.AccessToken)
		assert.Equal(t, "R2", grant.RefreshToken)
		assert.Equal(t, []string{"chat:write", "users:read"}, grant.Scopes)
		assert.WithinDuration(t, before.Add(time.Hour), grant.Expiry, 5*time.Second)

		form := <-f.forms
		assert.Equal(t, "refresh_token", form["grant_type"])
		assert.Equal(t, "R1", form["refresh_token"])
		assert.Equal(t, "client", form["client_id"])
	})

	t.Run("Omitted refresh token yields an empty grant refresh token", func(t *testing.T) {
		f := setupTestFixture(t, http.StatusOK, map[string]interface{}{
			"access_token": "A2",
			"token_type":   "Bearer",
		})

		grant, err := f.source.Refresh(context.Background(), "R1", []string{"Mail.Send"})
		require.NoError(t, err)

		assert.Equal(t, "A2", grant.AccessToken)
		assert.Empty(t, grant.RefreshToken)
		assert.True(t, grant.Expiry.IsZero())
		assert.Equal(t, []string{"Mail.Send"}, grant.Scopes)
	})

	t.Run("Account function reads provider fields", func(t *testing.T) {
		f := setupTestFixture(t, http.StatusOK, map[string]interface{}{
			"access_token": "xoxp-2",
			"token_type":   "Bearer",
			"team":         map[string]interface{}{"id": "T1", "name": "Acme"},
		}, oauthrefresh.WithAccountFunc(slack.AccountFromToken))

		grant, err := f.source.Refresh(context.Background(), "R1", nil)
		require.NoError(t, err)
		assert.Equal(t, "Acme", grant.AccountIdentifier)
	})

	t.Run("invalid_grant classifies as auth invalid", func(t *testing.T) {
		f := setupTestFixture(t, http.StatusBadRequest, map[string]interface{}{
			"error":             "invalid_grant",
			"error_description": "AADSTS70008: The refresh token has expired.",
		})

		grant, err := f.source.Refresh(context.Background(), "R1", nil)
		require.Error(t, err)
		assert.Nil(t, grant)

		var retrieveErr *oauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
		assert.Equal(t, classifier.AuthInvalid, classifier.Classify(err))
		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("Server errors classify as transient", func(t *testing.T) {
		f := setupTestFixture(t, http.StatusServiceUnavailable, map[string]interface{}{})

		_, err := f.source.Refresh(context.Background(), "R1", nil)
		require.Error(t, err)
		assert.Equal(t, classifier.Transient, classifier.Classify(err))
	})
}

func TestNew(t *testing.T) {
	t.Run("Requires a config", func(t *testing.T) {
		_, err := oauthrefresh.New(nil)
		require.Error(t, err)
	})

	t.Run("Requires a token url", func(t *testing.T) {
		_, err := oauthrefresh.New(&oauth2.Config{ClientID: "client"})
		require.Error(t, err)
	})
}
