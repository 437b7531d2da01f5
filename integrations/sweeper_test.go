package integrations_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/integrations"
	"github.com/jrsteele09/go-integrations/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeper_RequiresService(t *testing.T) {
	_, err := integrations.NewSweeper(nil)
	require.Error(t, err)
}

func TestSweepOnce(t *testing.T) {
	t.Run("Checks every connection across pages", func(t *testing.T) {
		f := setupTestFixture(t)
		for i := 0; i < 7; i++ {
			key := credentials.Key{UserID: fmt.Sprintf("user-%d", i), Provider: credentials.ProviderSlack}
			f.storeCredential(t, key, "A1", testNow.Add(2*time.Hour), i%2 == 0)
		}

		sweeper, err := integrations.NewSweeper(f.service, integrations.WithSweepPageSize(3), integrations.WithSweepConcurrency(2))
		require.NoError(t, err)

		report, err := sweeper.SweepOnce(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 7, report.Checked)
		// probes succeed, so previously flagged connections recover
		assert.Equal(t, 7, report.Connected)
		assert.Equal(t, 0, report.NeedsAttention)
		assert.Equal(t, 0, report.Deferred)
	})

	t.Run("Keeps paging past rows the store could not read", func(t *testing.T) {
		f := setupTestFixture(t, withServiceRepo(func(r credentials.Repo) credentials.Repo {
			return &unreadableRowRepo{Repo: r, unreadableUser: "user-0"}
		}))
		for i := 0; i < 7; i++ {
			key := credentials.Key{UserID: fmt.Sprintf("user-%d", i), Provider: credentials.ProviderSlack}
			f.storeCredential(t, key, "A1", testNow.Add(2*time.Hour), true)
		}

		sweeper, err := integrations.NewSweeper(f.service, integrations.WithSweepPageSize(3))
		require.NoError(t, err)

		report, err := sweeper.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 6, report.Checked)
		assert.Equal(t, 6, report.Connected)
	})

	t.Run("Counts rejected and deferred checks", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, slackKey, "A1", testNow.Add(2*time.Hour), true)
		f.storeCredential(t, scopedKey, "A2", testNow.Add(-time.Minute), true)
		f.clients.probeErr = &providers.APIError{Provider: "slack", StatusCode: http.StatusUnauthorized, Code: "invalid_auth"}
		f.refreshErr = &providers.APIError{Provider: "slack", StatusCode: http.StatusBadGateway}

		sweeper, err := integrations.NewSweeper(f.service)
		require.NoError(t, err)

		report, err := sweeper.SweepOnce(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, report.Checked)
		assert.Equal(t, 1, report.NeedsAttention)
		assert.Equal(t, 1, report.Deferred)
	})

	t.Run("Empty store", func(t *testing.T) {
		f := setupTestFixture(t)
		sweeper, err := integrations.NewSweeper(f.service)
		require.NoError(t, err)

		report, err := sweeper.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Checked)
	})
}

func TestSweeperRun_StopsWithContext(t *testing.T) {
	f := setupTestFixture(t)
	f.storeCredential(t, slackKey, "A1", testNow.Add(2*time.Hour), true)

	sweeper, err := integrations.NewSweeper(f.service, integrations.WithSweepInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = sweeper.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// unreadableRowRepo drops one user's rows from List pages the way the
// postgres store skips records it cannot open
type unreadableRowRepo struct {
	credentials.Repo
	unreadableUser string
}

func (r *unreadableRowRepo) List(ctx context.Context, offset, limit int) ([]*credentials.Credential, error) {
	page, err := r.Repo.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	readable := page[:0]
	for _, c := range page {
		if c.UserID != r.unreadableUser {
			readable = append(readable, c)
		}
	}
	return readable, nil
}
