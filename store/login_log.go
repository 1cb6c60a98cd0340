package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jrsteele09/go-tenant-auth/audit"
	"github.com/jrsteele09/go-tenant-auth/isolation"
)

var loginLogColumns = []string{
	"id", "username", "event", "login_type", "status", "message",
	"ip", "browser", "os", "device_id", "created_at",
}

// LoginLogRepo stores login log entries in sys_login_log.
type LoginLogRepo struct {
	exec isolation.Executor
}

var _ audit.Sink = (*LoginLogRepo)(nil)

func (r *LoginLogRepo) Record(ctx context.Context, e *audit.Entry) error {
	_, err := r.exec.Exec(ctx, isolation.Statement{
		ID:      "loginLog.record",
		Kind:    isolation.KindInsert,
		Table:   TableLoginLog,
		Columns: loginLogColumns,
		Values: []any{
			e.ID, e.Username, e.Event, e.LoginType, e.Status, e.Message,
			e.IP, e.Browser, e.OS, e.DeviceID, millis(e.CreatedAt),
		},
	})
	return err
}

// LoginLogFilter narrows List. Empty fields match everything.
type LoginLogFilter struct {
	Username string
	Status   string
	Offset   int
	Limit    int
}

// List returns the newest entries first.
func (r *LoginLogRepo) List(ctx context.Context, f LoginLogFilter) ([]audit.Entry, error) {
	var filter sq.And
	if f.Username != "" {
		filter = append(filter, sq.Eq{"username": f.Username})
	}
	if f.Status != "" {
		filter = append(filter, sq.Eq{"status": f.Status})
	}
	stmt := isolation.Statement{
		ID:      "loginLog.list",
		Kind:    isolation.KindSelect,
		Table:   TableLoginLog,
		Columns: append([]string{"tenant_id"}, loginLogColumns...),
		OrderBy: []string{"created_at DESC", "id"},
	}
	if len(filter) > 0 {
		stmt.Filter = filter
	}
	stmt.Offset, stmt.Limit = page(f.Offset, f.Limit)

	rows, err := r.exec.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			created int64
		)
		if err := rows.Scan(&e.TenantID, &e.ID, &e.Username, &e.Event, &e.LoginType, &e.Status, &e.Message,
			&e.IP, &e.Browser, &e.OS, &e.DeviceID, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
