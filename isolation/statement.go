// Package isolation scopes every data access statement to the tenant carried
// by the request context. Statements are structured values compiled with
// squirrel; executors never accept raw SQL strings.
package isolation

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Statement is a single data access request against one table.
type Statement struct {
	// ID names the call site, for example "users.getByUsername".
	ID      string
	Kind    Kind
	Table   string
	Columns []string       // selected columns, or inserted columns
	Values  []any          // inserted values, aligned with Columns
	Set     map[string]any // update assignments
	Filter  sq.Sqlizer
	OrderBy []string
	Limit   uint64
	Offset  uint64 // applied only together with Limit
}

// ToSQL renders the statement with the given placeholder format.
func (s Statement) ToSQL(format sq.PlaceholderFormat) (string, []any, error) {
	if s.Table == "" {
		return "", nil, fmt.Errorf("statement %q has no table", s.ID)
	}

	switch s.Kind {
	case KindSelect:
		if len(s.Columns) == 0 {
			return "", nil, fmt.Errorf("statement %q selects no columns", s.ID)
		}
		b := sq.Select(s.Columns...).From(s.Table).PlaceholderFormat(format)
		if s.Filter != nil {
			b = b.Where(s.Filter)
		}
		if len(s.OrderBy) > 0 {
			b = b.OrderBy(s.OrderBy...)
		}
		if s.Limit > 0 {
			b = b.Limit(s.Limit)
			if s.Offset > 0 {
				b = b.Offset(s.Offset)
			}
		}
		return b.ToSql()

	case KindInsert:
		if len(s.Columns) == 0 || len(s.Columns) != len(s.Values) {
			return "", nil, fmt.Errorf("statement %q has %d columns and %d values", s.ID, len(s.Columns), len(s.Values))
		}
		return sq.Insert(s.Table).
			Columns(s.Columns...).
			Values(s.Values...).
			PlaceholderFormat(format).
			ToSql()

	case KindUpdate:
		if len(s.Set) == 0 {
			return "", nil, fmt.Errorf("statement %q updates nothing", s.ID)
		}
		b := sq.Update(s.Table).SetMap(s.Set).PlaceholderFormat(format)
		if s.Filter != nil {
			b = b.Where(s.Filter)
		}
		return b.ToSql()

	case KindDelete:
		b := sq.Delete(s.Table).PlaceholderFormat(format)
		if s.Filter != nil {
			b = b.Where(s.Filter)
		}
		return b.ToSql()

	default:
		return "", nil, fmt.Errorf("statement %q has unknown kind %s", s.ID, s.Kind)
	}
}

// paren wraps a predicate in parentheses so that a disjunction in the
// original filter cannot escape a conjunction added around it.
type paren struct {
	inner sq.Sqlizer
}

func (p paren) ToSql() (string, []any, error) {
	sql, args, err := p.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	if sql == "" {
		return "", nil, nil
	}
	return "(" + sql + ")", args, nil
}
