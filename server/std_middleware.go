package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/jrsteele09/go-tenant-auth/tenants"
)

type Middleware = func(http.HandlerFunc) http.HandlerFunc

// ChainMiddleware wraps routeFunction so that mw[0] runs first.
func ChainMiddleware(routeFunction http.HandlerFunc, mw ...Middleware) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// PublicMiddleware is the chain for unauthenticated endpoints. The tenant
// comes from the X-Tenant-Id header.
func (s *Server) PublicMiddleware(mw ...Middleware) []Middleware {
	chained := []Middleware{
		s.TenantScopeMiddleware,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.TenantBootstrap,
	}
	return append(chained, mw...)
}

// APIMiddleware is the chain for bearer token endpoints. The tenant comes
// from the validated token only.
func (s *Server) APIMiddleware(mw ...Middleware) []Middleware {
	chained := []Middleware{
		s.TenantScopeMiddleware,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.RequireAuth,
	}
	return append(chained, mw...)
}

// TenantScopeMiddleware starts every request without a tenant or system scope.
func (s *Server) TenantScopeMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(tenants.Reset(r.Context())))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type requestLogKey struct{}

// requestLog carries fields learned by inner middleware back to LoggingMiddleware.
type requestLog struct {
	tenant string
}

func noteTenant(ctx context.Context, tenantID string) {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		rl.tenant = tenantID
	}
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rl := &requestLog{tenant: tenants.ID(r.Context())}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

		event := s.log.Info()
		if rec.status >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("tenant", rl.tenant).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("recovered from panic")
				writeJSONError(w, "internal_error", "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}
