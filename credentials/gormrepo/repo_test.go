package gormrepo_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/credentials/gormrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testFixture struct {
	repo   *gormrepo.Repo
	userID string
}

// setupTestFixture needs TEST_DATABASE_URL pointing at a disposable Postgres.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sealer, err := credentials.NewSealer([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	repo, err := gormrepo.New(db, sealer)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))

	// unique user per test keeps runs independent
	return &testFixture{repo: repo, userID: "test-" + uuid.NewString()}
}

func (f *testFixture) key(scope string) credentials.Key {
	return credentials.Key{UserID: f.userID, Provider: credentials.ProviderSlack, ScopeKey: scope}
}

func (f *testFixture) credential(scope string) *credentials.Credential {
	return &credentials.Credential{
		UserID:       f.userID,
		Provider:     credentials.ProviderSlack,
		ScopeKey:     scope,
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Healthy:      true,
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := gormrepo.New(nil, nil)
	require.Error(t, err)
}

func TestRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("Get missing", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.repo.Get(ctx, f.key(""))
		require.ErrorIs(t, err, credentials.ErrNotFound)
	})

	t.Run("Upsert keeps identity on conflict", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.repo.Upsert(ctx, f.credential("")))
		first, err := f.repo.Get(ctx, f.key(""))
		require.NoError(t, err)

		replacement := f.credential("")
		replacement.AccessToken = "A2"
		require.NoError(t, f.repo.Upsert(ctx, replacement))

		second, err := f.repo.Get(ctx, f.key(""))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "A2", second.AccessToken)
	})

	t.Run("Upsert stores an unhealthy record as unhealthy", func(t *testing.T) {
		f := setupTestFixture(t)
		flagged := f.credential("")
		flagged.MarkUnhealthy("Slack connection expired or was revoked.", time.Now().UTC())
		require.NoError(t, f.repo.Upsert(ctx, flagged))

		c, err := f.repo.Get(ctx, f.key(""))
		require.NoError(t, err)
		assert.False(t, c.Healthy)
		assert.NotEmpty(t, c.LastErrorMessage)

		// the conflict path replaces the flag too
		healthy := f.credential("")
		require.NoError(t, f.repo.Upsert(ctx, healthy))
		require.NoError(t, f.repo.Upsert(ctx, flagged))
		c, err = f.repo.Get(ctx, f.key(""))
		require.NoError(t, err)
		assert.False(t, c.Healthy)
	})

	t.Run("Update is atomic per key", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.repo.Upsert(ctx, f.credential("")))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.repo.Update(ctx, f.key(""), func(c *credentials.Credential) error {
					c.GrantedScopes = append(c.GrantedScopes, "s")
					return nil
				})
			}()
		}
		wg.Wait()

		c, err := f.repo.Get(ctx, f.key(""))
		require.NoError(t, err)
		assert.Len(t, c.GrantedScopes, 10)
	})

	t.Run("Update on missing record", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.repo.Update(ctx, f.key(""), func(*credentials.Credential) error { return nil })
		require.ErrorIs(t, err, credentials.ErrNotFound)
	})

	t.Run("ListByUser and Delete", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.repo.Upsert(ctx, f.credential("")))
		require.NoError(t, f.repo.Upsert(ctx, f.credential("client-42")))

		list, err := f.repo.ListByUser(ctx, f.userID, credentials.ProviderSlack)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		require.NoError(t, f.repo.Delete(ctx, f.key("client-42")))
		require.NoError(t, f.repo.Delete(ctx, f.key("client-42")))

		list, err = f.repo.ListByUser(ctx, f.userID, credentials.ProviderSlack)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
