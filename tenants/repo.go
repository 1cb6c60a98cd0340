package tenants

import "context"

// Repo is the tenant directory. Implementations return errors.ErrTenantNotFound for unknown ids.
type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}
