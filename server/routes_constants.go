package server

// Route path constants
const (
	// RouteOAuthCallback is the redirect URI registered for the marketplace app.
	RouteOAuthCallback = "/oauth/callback"

	RouteSessions = "/sessions"
	RouteHealth   = "/healthz"
	RouteMetrics  = "/metrics"
)
