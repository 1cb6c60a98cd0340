package server

import (
	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Public
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.PublicMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.PublicMiddleware()...))

	// Bearer token
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogoutAll, ChainMiddleware(s.LogoutAllHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthInfo, ChainMiddleware(s.InfoHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSessions, ChainMiddleware(s.SessionsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware()...))

	// Bearer token and permission
	s.RegisterRouteHandler("GET "+RouteAPIUsers, ChainMiddleware(s.ListUsersHandler(), s.APIMiddleware(s.RequirePermission(users.PermissionUserList))...))
	s.RegisterRouteHandler("POST "+RouteAPIUserUnlock, ChainMiddleware(s.UnlockUserHandler(), s.APIMiddleware(s.RequirePermission(users.PermissionUserUnlock))...))
	s.RegisterRouteHandler("GET "+RouteAPILoginLogs, ChainMiddleware(s.ListLoginLogsHandler(), s.APIMiddleware(s.RequirePermission(users.PermissionLoginLogList))...))

	// Operational
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
}
