package config

import "time"

type IntegrationConfig interface {
	GetRefreshMargin() time.Duration
	GetDefaultTokenLifetime() time.Duration
	GetProviderTimeout() time.Duration
	GetHealthCheckInterval() time.Duration
	GetHealthCheckConcurrency() int
}

type Integrations struct{}

var _ IntegrationConfig = Integrations{}

// GetRefreshMargin is how far ahead of expiry an access token is refreshed.
func (Integrations) GetRefreshMargin() time.Duration {
	return GetEnvDuration("REFRESH_MARGIN", 30*time.Minute)
}

// GetDefaultTokenLifetime is used when the provider omits expires_in.
func (Integrations) GetDefaultTokenLifetime() time.Duration {
	return GetEnvDuration("DEFAULT_TOKEN_LIFETIME", time.Hour)
}

func (Integrations) GetProviderTimeout() time.Duration {
	return GetEnvDuration("PROVIDER_TIMEOUT", 20*time.Second)
}

func (Integrations) GetHealthCheckInterval() time.Duration {
	return GetEnvDuration("HEALTH_CHECK_INTERVAL", 6*time.Hour)
}

func (Integrations) GetHealthCheckConcurrency() int {
	return GetEnvInt("HEALTH_CHECK_CONCURRENCY", 4)
}
