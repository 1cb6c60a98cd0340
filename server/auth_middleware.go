package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/users"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p users.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by RequireAuth.
func PrincipalFrom(ctx context.Context) (users.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(users.Principal)
	return p, ok
}

// RequireAuth validates the bearer token for the request's device and scopes
// the request to the tenant in the token claims.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		p, err := s.tokens.Validate(raw, r.Header.Get(HeaderDeviceID))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := tenants.WithTenant(r.Context(), tenants.Context{TenantID: p.TenantID, TenantCode: p.TenantCode})
		ctx = withPrincipal(ctx, *p)
		noteTenant(ctx, p.TenantID)
		next(w, r.WithContext(ctx))
	}
}

// TenantBootstrap scopes a public request to the X-Tenant-Id header. The
// tenant is unverified until a login succeeds.
func (s *Server) TenantBootstrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HeaderTenantID)); id != "" {
			r = r.WithContext(tenants.WithTenant(r.Context(), tenants.Context{TenantID: id}))
			noteTenant(r.Context(), id)
		}
		next(w, r)
	}
}

// RequirePermission must run after RequireAuth.
func (s *Server) RequirePermission(perm string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				s.writeError(w, r, errors.Wrapf(errors.ErrTokenInvalid, "no principal"))
				return
			}
			if !p.HasPermission(perm) {
				s.writeError(w, r, errors.Wrapf(errors.ErrPermissionDenied, "%s requires %s", p.Username, perm))
				return
			}
			next(w, r)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(HeaderAuthorization)
	if header == "" {
		return "", errors.Wrapf(errors.ErrTokenInvalid, "missing Authorization header")
	}
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
		return "", errors.Wrapf(errors.ErrTokenInvalid, "invalid Authorization header format")
	}
	return strings.TrimSpace(raw), nil
}
