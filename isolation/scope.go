package isolation

import (
	"context"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/rs/zerolog"
)

const DefaultTenantColumn = "tenant_id"

type Decision string

const (
	DecisionScoped   Decision = "scoped"
	DecisionExempt   Decision = "exempt"
	DecisionSystem   Decision = "system"
	DecisionRejected Decision = "rejected"
)

// Scoper rewrites statements so they only read or write rows of the current tenant.
type Scoper struct {
	column     string
	tables     map[string]struct{}
	statements map[string]struct{}
	log        zerolog.Logger
}

type ScoperOption func(*Scoper)

func WithTenantColumn(column string) ScoperOption {
	return func(s *Scoper) {
		if column != "" {
			s.column = column
		}
	}
}

// WithExemptTables lists tables that are never tenant scoped.
func WithExemptTables(tables ...string) ScoperOption {
	return func(s *Scoper) {
		for _, t := range tables {
			s.tables[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
	}
}

// WithExemptStatements lists statement ids that are never tenant scoped.
func WithExemptStatements(ids ...string) ScoperOption {
	return func(s *Scoper) {
		for _, id := range ids {
			s.statements[strings.TrimSpace(id)] = struct{}{}
		}
	}
}

func WithLogger(log zerolog.Logger) ScoperOption {
	return func(s *Scoper) {
		s.log = log
	}
}

func NewScoper(options ...ScoperOption) *Scoper {
	s := &Scoper{
		column:     DefaultTenantColumn,
		tables:     make(map[string]struct{}),
		statements: make(map[string]struct{}),
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Scoper) TenantColumn() string {
	return s.column
}

// Exempt reports whether stmt is on the exemption list.
func (s *Scoper) Exempt(stmt Statement) bool {
	if _, ok := s.tables[strings.ToLower(stmt.Table)]; ok {
		return true
	}
	_, ok := s.statements[stmt.ID]
	return ok
}

// Scope returns stmt restricted to the tenant in ctx.
//
// Exempt statements pass unchanged. Without a tenant, statements pass
// unchanged only under tenants.WithSystemScope and otherwise fail with
// errors.ErrTenantMissing. Writes carrying another tenant's id fail with
// errors.ErrPermissionDenied.
func (s *Scoper) Scope(ctx context.Context, stmt Statement) (Statement, Decision, error) {
	if s.Exempt(stmt) {
		return stmt, DecisionExempt, nil
	}

	tc, ok := tenants.FromContext(ctx)
	if !ok {
		if reason, system := tenants.SystemScope(ctx); system {
			s.log.Debug().
				Str("statement", stmt.ID).
				Str("table", stmt.Table).
				Str("reason", reason).
				Msg("system scoped statement runs without tenant")
			return stmt, DecisionSystem, nil
		}
		return Statement{}, DecisionRejected, errors.Wrapf(errors.ErrTenantMissing, "statement %q on %s", stmt.ID, stmt.Table)
	}
	tenantID := tc.TenantID

	switch stmt.Kind {
	case KindSelect, KindDelete:
		stmt.Filter = s.restrict(stmt.Filter, tenantID)

	case KindUpdate:
		for col, v := range stmt.Set {
			if strings.EqualFold(col, s.column) && !sameTenant(v, tenantID) {
				return Statement{}, DecisionRejected, errors.Wrapf(errors.ErrPermissionDenied, "statement %q moves rows to another tenant", stmt.ID)
			}
		}
		stmt.Filter = s.restrict(stmt.Filter, tenantID)

	case KindInsert:
		idx := slices.IndexFunc(stmt.Columns, func(c string) bool {
			return strings.EqualFold(c, s.column)
		})
		if idx >= 0 {
			if idx >= len(stmt.Values) || !sameTenant(stmt.Values[idx], tenantID) {
				return Statement{}, DecisionRejected, errors.Wrapf(errors.ErrPermissionDenied, "statement %q writes another tenant's row", stmt.ID)
			}
		} else {
			stmt.Columns = append(slices.Clone(stmt.Columns), s.column)
			stmt.Values = append(slices.Clone(stmt.Values), tenantID)
		}

	default:
		return Statement{}, DecisionRejected, errors.Wrapf(errors.ErrInvalidRequest, "statement %q has unknown kind", stmt.ID)
	}

	return stmt, DecisionScoped, nil
}

func (s *Scoper) restrict(filter sq.Sqlizer, tenantID string) sq.Sqlizer {
	predicate := sq.Eq{s.column: tenantID}
	if filter == nil {
		return predicate
	}
	return sq.And{paren{inner: filter}, predicate}
}

func sameTenant(v any, tenantID string) bool {
	s, ok := v.(string)
	return ok && s == tenantID
}
