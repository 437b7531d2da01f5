package server

// Route path constants
const (
	RouteHealth = "/healthz"

	// Integration management, {provider} is a credentials.Provider name
	RouteIntegrations      = "/api/integrations/{provider}"
	RouteIntegrationStatus = "/api/integrations/{provider}/status"
	RouteIntegrationCheck  = "/api/integrations/{provider}/check"

	RouteNotifications = "/api/notifications"
)

const (
	contentTypeJSON = "application/json"
	headerUserID    = "X-User-ID"
	queryScope      = "scope"
)
