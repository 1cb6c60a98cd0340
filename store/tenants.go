package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/isolation"
	"github.com/jrsteele09/go-tenant-auth/tenants"
)

var tenantColumns = []string{"id", "code", "name", "status", "created_at"}

// TenantRepo is the tenant directory in sys_tenant, which is exempt from tenant scoping.
type TenantRepo struct {
	exec isolation.Executor
}

var _ tenants.Repo = (*TenantRepo)(nil)

func (r *TenantRepo) Upsert(ctx context.Context, t *tenants.Tenant) error {
	if t.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "tenant id is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	res, err := r.exec.Exec(ctx, isolation.Statement{
		ID:    "tenants.update",
		Kind:  isolation.KindUpdate,
		Table: TableTenants,
		Set: map[string]any{
			"code":   t.Code,
			"name":   t.Name,
			"status": int(t.Status),
		},
		Filter: sq.Eq{"id": t.ID},
	})
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil || n > 0 {
		return err
	}

	_, err = r.exec.Exec(ctx, isolation.Statement{
		ID:      "tenants.create",
		Kind:    isolation.KindInsert,
		Table:   TableTenants,
		Columns: tenantColumns,
		Values:  []any{t.ID, t.Code, t.Name, int(t.Status), millis(t.CreatedAt)},
	})
	return err
}

func (r *TenantRepo) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	var t *tenants.Tenant
	err := queryOne(ctx, r.exec, isolation.Statement{
		ID:      "tenants.get",
		Kind:    isolation.KindSelect,
		Table:   TableTenants,
		Columns: tenantColumns,
		Filter:  sq.Eq{"id": tenantID},
		Limit:   1,
	}, func(s scanner) error {
		var err error
		t, err = scanTenant(s)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrTenantNotFound, "%s", tenantID)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TenantRepo) List(ctx context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	off, lim := page(offset, limit)
	rows, err := r.exec.Query(ctx, isolation.Statement{
		ID:      "tenants.list",
		Kind:    isolation.KindSelect,
		Table:   TableTenants,
		Columns: tenantColumns,
		OrderBy: []string{"id"},
		Limit:   lim,
		Offset:  off,
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tenants.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTenant(s scanner) (*tenants.Tenant, error) {
	var (
		t       tenants.Tenant
		status  int
		created int64
	)
	if err := s.Scan(&t.ID, &t.Code, &t.Name, &status, &created); err != nil {
		return nil, err
	}
	t.Status = tenants.Status(status)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}
