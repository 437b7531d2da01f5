package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-integrations/credentials"
	credentialgorm "github.com/jrsteele09/go-integrations/credentials/gormrepo"
	"github.com/jrsteele09/go-integrations/credentials/redislock"
	credentialrepofake "github.com/jrsteele09/go-integrations/credentials/repofake"
	"github.com/jrsteele09/go-integrations/destinations"
	preferencegorm "github.com/jrsteele09/go-integrations/destinations/gormrepo"
	preferencerepofake "github.com/jrsteele09/go-integrations/destinations/repofake"
	"github.com/jrsteele09/go-integrations/health"
	"github.com/jrsteele09/go-integrations/integrations"
	"github.com/jrsteele09/go-integrations/internal/config"
	"github.com/jrsteele09/go-integrations/providers/microsoft"
	"github.com/jrsteele09/go-integrations/providers/oauthrefresh"
	"github.com/jrsteele09/go-integrations/providers/slack"
	"github.com/jrsteele09/go-integrations/server"
	"github.com/jrsteele09/go-integrations/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type app struct {
	handler http.Handler
	sweep   func(ctx context.Context) error
	closers []func() error
}

// start runs the background sweep. The returned stop cancels it, waits for
// it to return and only then closes the stores it uses.
func (a *app) start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.sweep == nil {
			return
		}
		if err := a.sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("health sweeper stopped")
		}
	}()
	return func() {
		cancel()
		<-done
		a.close()
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func buildApp(ctx context.Context, c config.Config) (*app, error) {
	a := &app{}

	credRepo, prefRepo, err := a.openStores(ctx, c)
	if err != nil {
		return nil, err
	}

	locker, err := a.openLocker(ctx, c)
	if err != nil {
		return nil, err
	}

	tracker, err := health.NewTracker(credRepo)
	if err != nil {
		return nil, err
	}

	refresherOpts := []token.RefresherOption{
		token.WithLocker(locker),
		token.WithRefreshMargin(c.GetRefreshMargin()),
		token.WithDefaultLifetime(c.GetDefaultTokenLifetime()),
		token.WithProviderTimeout(c.GetProviderTimeout()),
	}
	providerOpts, err := refreshProviders(c)
	if err != nil {
		return nil, err
	}
	refresher, err := token.NewRefresher(credRepo, tracker, append(refresherOpts, providerOpts...)...)
	if err != nil {
		return nil, err
	}

	var resolverOpts []destinations.ResolverOption
	if target := c.GetSystemDefaultTarget(); target != "" {
		resolverOpts = append(resolverOpts, destinations.WithSystemDefault(destinations.Destination{
			Provider: credentials.Provider(c.GetSystemDefaultProvider()),
			Target:   target,
		}))
	}
	resolver, err := destinations.NewResolver(prefRepo, resolverOpts...)
	if err != nil {
		return nil, err
	}

	serviceOpts := []integrations.Option{
		integrations.WithProviderTimeout(c.GetProviderTimeout()),
		integrations.WithClientFactory(credentials.ProviderSlack, slackClient),
		integrations.WithClientFactory(credentials.ProviderMicrosoft, microsoftClient),
	}
	if botToken := c.GetSlackSystemBotToken(); botToken != "" {
		system, err := slack.NewClient(botToken)
		if err != nil {
			return nil, err
		}
		serviceOpts = append(serviceOpts, integrations.WithSystemClient(credentials.ProviderSlack, system))
	}

	service, err := integrations.NewService(integrations.Deps{
		Repo:      credRepo,
		Refresher: refresher,
		Tracker:   tracker,
		Resolver:  resolver,
	}, serviceOpts...)
	if err != nil {
		return nil, err
	}

	sweeper, err := integrations.NewSweeper(service,
		integrations.WithSweepInterval(c.GetHealthCheckInterval()),
		integrations.WithSweepConcurrency(c.GetHealthCheckConcurrency()),
	)
	if err != nil {
		return nil, err
	}
	a.sweep = sweeper.Run

	a.handler, err = server.New(c, service)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// openStores uses Postgres when DATABASE_URL is set and in-memory stores otherwise.
func (a *app) openStores(ctx context.Context, c config.Config) (credentials.Repo, destinations.PreferenceRepo, error) {
	dsn := c.GetDatabaseURL()
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, credentials are kept in memory and lost on restart")
		return credentialrepofake.NewFakeCredentialRepo(), preferencerepofake.NewFakePreferenceRepo(), nil
	}

	key, err := c.GetEncryptionKey()
	if err != nil {
		return nil, nil, err
	}
	sealer, err := credentials.NewSealer(key)
	if err != nil {
		return nil, nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gorm.Open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	a.closers = append(a.closers, sqlDB.Close)

	credRepo, err := credentialgorm.New(db, sealer)
	if err != nil {
		return nil, nil, err
	}
	prefRepo, err := preferencegorm.New(db)
	if err != nil {
		return nil, nil, err
	}

	if c.GetDatabaseMigrate() {
		if err := credRepo.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate credentials: %w", err)
		}
		if err := prefRepo.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate preferences: %w", err)
		}
	}
	log.Info().Msg("using postgres credential store")
	return credRepo, prefRepo, nil
}

// openLocker uses Redis when configured so refreshes are serialised across
// instances, and a process local lock otherwise.
func (a *app) openLocker(ctx context.Context, c config.Config) (credentials.Locker, error) {
	url := c.GetRedisURL()
	if url == "" {
		log.Info().Msg("REDIS_URL not set, using in-process refresh lock")
		return credentials.NewMemoryLocker(), nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	locker, err := redislock.New(client, c.GetLockPrefix())
	if err != nil {
		return nil, err
	}
	log.Info().Msg("using redis refresh lock")
	return locker, nil
}

func refreshProviders(c config.ProviderConfig) ([]token.RefresherOption, error) {
	var opts []token.RefresherOption

	if id := c.GetMicrosoftClientID(); id != "" {
		src, err := oauthrefresh.New(microsoft.OAuthConfig(id, c.GetMicrosoftClientSecret(), c.GetMicrosoftTenant(), nil))
		if err != nil {
			return nil, err
		}
		opts = append(opts, token.WithProvider(credentials.ProviderMicrosoft, src))
	} else {
		log.Warn().Msg("MICROSOFT_CLIENT_ID not set, microsoft tokens cannot be refreshed")
	}

	if id := c.GetSlackClientID(); id != "" {
		src, err := oauthrefresh.New(slack.OAuthConfig(id, c.GetSlackClientSecret(), nil), oauthrefresh.WithAccountFunc(slack.AccountFromToken))
		if err != nil {
			return nil, err
		}
		opts = append(opts, token.WithProvider(credentials.ProviderSlack, src))
	} else {
		log.Warn().Msg("SLACK_CLIENT_ID not set, slack tokens cannot be refreshed")
	}
	return opts, nil
}

func slackClient(accessToken string) (integrations.Client, error) {
	c, err := slack.NewClient(accessToken)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func microsoftClient(accessToken string) (integrations.Client, error) {
	c, err := microsoft.NewClient(accessToken)
	if err != nil {
		return nil, err
	}
	return c, nil
}
