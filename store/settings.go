package store

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/isolation"
)

// SettingsRepo keeps global key/value settings in sys_config.
type SettingsRepo struct {
	exec isolation.Executor
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := queryOne(ctx, r.exec, isolation.Statement{
		ID:      "settings.get",
		Kind:    isolation.KindSelect,
		Table:   TableConfig,
		Columns: []string{"config_value"},
		Filter:  sq.Eq{"config_key": key},
		Limit:   1,
	}, func(s scanner) error {
		return s.Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(errors.ErrNotFound, "setting %s", key)
	}
	return value, err
}

func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	res, err := r.exec.Exec(ctx, isolation.Statement{
		ID:     "settings.update",
		Kind:   isolation.KindUpdate,
		Table:  TableConfig,
		Set:    map[string]any{"config_value": value},
		Filter: sq.Eq{"config_key": key},
	})
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil || n > 0 {
		return err
	}
	_, err = r.exec.Exec(ctx, isolation.Statement{
		ID:      "settings.create",
		Kind:    isolation.KindInsert,
		Table:   TableConfig,
		Columns: []string{"config_key", "config_value"},
		Values:  []any{key, value},
	})
	return err
}
