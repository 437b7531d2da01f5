package gormrepo_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/destinations"
	"github.com/jrsteele09/go-integrations/destinations/gormrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestFixture(t *testing.T) *gormrepo.Repo {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	repo, err := gormrepo.New(db)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestPreferenceRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing user", func(t *testing.T) {
		repo := setupTestFixture(t)
		_, err := repo.Get(ctx, "test-"+uuid.NewString())
		require.ErrorIs(t, err, destinations.ErrNotFound)
	})

	t.Run("Upsert replaces every level", func(t *testing.T) {
		repo := setupTestFixture(t)
		userID := "test-" + uuid.NewString()

		prefs := destinations.NewPreferences(userID)
		prefs.SetScopeOverride("client-42", destinations.CategoryTaskAlerts, destinations.Destination{Provider: credentials.ProviderSlack, Target: "C-CLIENT"})
		prefs.SetCategory(destinations.CategoryInvoiceReminders, destinations.Destination{Provider: credentials.ProviderSlack, Target: "C-BILLING"})
		prefs.Default = &destinations.Destination{Provider: credentials.ProviderMicrosoft, Target: "jo@contoso.com"}
		require.NoError(t, repo.Upsert(ctx, prefs))

		got, err := repo.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "C-CLIENT", got.ScopeOverrides["client-42"][destinations.CategoryTaskAlerts].Target)
		assert.Equal(t, "C-BILLING", got.Categories[destinations.CategoryInvoiceReminders].Target)
		require.NotNil(t, got.Default)
		assert.Equal(t, "jo@contoso.com", got.Default.Target)

		replacement := destinations.NewPreferences(userID)
		replacement.SetCategory(destinations.CategoryTaskAlerts, destinations.Destination{Provider: credentials.ProviderSlack, Target: "C-TASKS"})
		require.NoError(t, repo.Upsert(ctx, replacement))

		got, err = repo.Get(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, got.ScopeOverrides)
		assert.Nil(t, got.Default)
		assert.Len(t, got.Categories, 1)
	})
}
