package tenants

import "context"

// Context identifies the tenant a request acts for.
type Context struct {
	TenantID   string
	TenantCode string
}

func (c Context) IsZero() bool {
	return c.TenantID == ""
}

type tenantKey struct{}

type systemScopeKey struct{}

// WithTenant returns a copy of ctx scoped to tc. Passing a zero Context clears
// any tenant inherited from a parent context.
func WithTenant(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, tenantKey{}, tc)
}

// FromContext returns the tenant context, if one is set and not cleared.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(tenantKey{}).(Context)
	if !ok || tc.IsZero() {
		return Context{}, false
	}
	return tc, true
}

// ID returns the current tenant id or "".
func ID(ctx context.Context) string {
	tc, _ := FromContext(ctx)
	return tc.TenantID
}

// WithSystemScope marks ctx as a system-internal call site that may access
// data without a tenant. The reason is recorded for logs.
func WithSystemScope(ctx context.Context, reason string) context.Context {
	if reason == "" {
		reason = "unspecified"
	}
	return context.WithValue(ctx, systemScopeKey{}, reason)
}

// SystemScope reports whether ctx carries the system-scope marker and why.
func SystemScope(ctx context.Context) (string, bool) {
	reason, ok := ctx.Value(systemScopeKey{}).(string)
	return reason, ok
}

// Reset returns ctx with no tenant and no system-scope marker, for use at the
// start of a unit of work such as an HTTP request.
func Reset(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, tenantKey{}, Context{})
	return context.WithValue(ctx, systemScopeKey{}, nil)
}
