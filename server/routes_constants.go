package server

// Route path constants
const (
	// Public auth routes
	RouteAuthLogin   = "/auth/login"
	RouteAuthRefresh = "/auth/refresh"

	// Bearer auth routes
	RouteAuthLogout         = "/auth/logout"
	RouteAuthLogoutAll      = "/auth/logout-all"
	RouteAuthInfo           = "/auth/info"
	RouteAuthSessions       = "/auth/sessions"
	RouteAuthChangePassword = "/auth/change-password"

	// Tenant administration routes
	RouteAPIUsers      = "/api/users"
	RouteAPIUserUnlock = "/api/users/{username}/unlock"
	RouteAPILoginLogs  = "/api/login-logs"

	// Operational routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// Request headers
const (
	HeaderAuthorization = "Authorization"
	HeaderDeviceID      = "Device-Id"
	HeaderRefreshToken  = "Refresh-Token"
	HeaderTenantID      = "X-Tenant-Id"
)
