package config

type Config interface {
	EnvConfig
	CorsConfig
	StorageConfig
	IntegrationConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Storage
	Integrations
	Providers
}

func New() Config {
	return mainConfig{}
}
