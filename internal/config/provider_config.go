package config

type ProviderConfig interface {
	GetMicrosoftClientID() string
	GetMicrosoftClientSecret() string
	GetMicrosoftTenant() string
	GetSlackClientID() string
	GetSlackClientSecret() string
	GetSlackSystemBotToken() string
	GetSystemDefaultProvider() string
	GetSystemDefaultTarget() string
}

type Providers struct{}

var _ ProviderConfig = Providers{}

func (Providers) GetMicrosoftClientID() string {
	return GetEnv("MICROSOFT_CLIENT_ID", "")
}

func (Providers) GetMicrosoftClientSecret() string {
	return GetEnv("MICROSOFT_CLIENT_SECRET", "")
}

// GetMicrosoftTenant defaults to "common" so both work and personal accounts refresh.
func (Providers) GetMicrosoftTenant() string {
	return GetEnv("MICROSOFT_TENANT", "common")
}

func (Providers) GetSlackClientID() string {
	return GetEnv("SLACK_CLIENT_ID", "")
}

func (Providers) GetSlackClientSecret() string {
	return GetEnv("SLACK_CLIENT_SECRET", "")
}

// GetSlackSystemBotToken is the operator's bot token used for system default deliveries.
func (Providers) GetSlackSystemBotToken() string {
	return GetEnv("SLACK_SYSTEM_BOT_TOKEN", "")
}

func (Providers) GetSystemDefaultProvider() string {
	return GetEnv("SYSTEM_DEFAULT_PROVIDER", "slack")
}

func (Providers) GetSystemDefaultTarget() string {
	return GetEnv("SYSTEM_DEFAULT_TARGET", "")
}
