package tenants_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/stretchr/testify/require"
)

func TestTenantContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := tenants.FromContext(ctx)
	require.False(t, ok)
	require.Empty(t, tenants.ID(ctx))

	ctx = tenants.WithTenant(ctx, tenants.Context{TenantID: "t1", TenantCode: "A01"})
	tc, ok := tenants.FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "t1", tc.TenantID)
	require.Equal(t, "A01", tc.TenantCode)
}

func TestTenantContextDoesNotLeakToSiblings(t *testing.T) {
	base := context.Background()
	first := tenants.WithTenant(base, tenants.Context{TenantID: "t1"})
	second := tenants.WithTenant(base, tenants.Context{TenantID: "t2"})

	require.Equal(t, "t1", tenants.ID(first))
	require.Equal(t, "t2", tenants.ID(second))
	require.Empty(t, tenants.ID(base))
}

func TestResetClearsTenantAndSystemScope(t *testing.T) {
	ctx := tenants.WithTenant(context.Background(), tenants.Context{TenantID: "t1"})
	ctx = tenants.WithSystemScope(ctx, "bootstrap")

	reason, ok := tenants.SystemScope(ctx)
	require.True(t, ok)
	require.Equal(t, "bootstrap", reason)

	ctx = tenants.Reset(ctx)
	_, ok = tenants.FromContext(ctx)
	require.False(t, ok)
	_, ok = tenants.SystemScope(ctx)
	require.False(t, ok)
}

func TestNewTenant(t *testing.T) {
	_, err := tenants.New(" ", "code", "name")
	require.Error(t, err)

	tenant, err := tenants.New("t1", "A01", "Acme")
	require.NoError(t, err)
	require.True(t, tenant.Enabled())
	require.Equal(t, tenants.Context{TenantID: "t1", TenantCode: "A01"}, tenant.Scope())

	tenant.Status = tenants.StatusDisabled
	require.False(t, tenant.Enabled())
}
