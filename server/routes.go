package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.Health(), s.StdMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteIntegrations, ChainMiddleware(s.ListConnections(), s.APIMiddleware(s.RequireUser())...))
	s.RegisterRouteHandler("DELETE "+RouteIntegrations, ChainMiddleware(s.Disconnect(), s.APIMiddleware(s.RequireUser())...))
	s.RegisterRouteHandler("GET "+RouteIntegrationStatus, ChainMiddleware(s.DescribeStatus(), s.APIMiddleware(s.RequireUser())...))
	s.RegisterRouteHandler("POST "+RouteIntegrationCheck, ChainMiddleware(s.CheckHealth(), s.APIMiddleware(s.RequireUser())...))

	s.RegisterRouteHandler("POST "+RouteNotifications, ChainMiddleware(s.Deliver(), s.APIMiddleware(s.RequireUser())...))

	// Preflight for the dashboard
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(noContent, s.APIMiddleware()...))
}
