// Package store persists tenants, users and the login log in SQLite or
// PostgreSQL. Every tenant-scoped statement goes through the isolation
// executor chain.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/isolation"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	TableTenants  = "sys_tenant"
	TableConfig   = "sys_config"
	TableUsers    = "sys_user"
	TableLoginLog = "sys_login_log"
)

type Config struct {
	Driver string // config.DriverSQLite or config.DriverPostgres
	DSN    string
}

type Store struct {
	db     *sql.DB
	driver string
	format sq.PlaceholderFormat
	exec   isolation.Executor
	log    zerolog.Logger
}

// Open connects to the database and builds the executor chain around scoper.
func Open(ctx context.Context, cfg Config, scoper *isolation.Scoper, log zerolog.Logger) (*Store, error) {
	if scoper == nil {
		return nil, fmt.Errorf("[store Open] scoper is required")
	}

	var format sq.PlaceholderFormat
	switch cfg.Driver {
	case config.DriverSQLite:
		format = sq.Question
	case config.DriverPostgres:
		format = sq.Dollar
	default:
		return nil, fmt.Errorf("[store Open] unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == config.DriverSQLite {
		// SQLite allows one writer; a single connection also keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Driver, err)
	}

	exec := isolation.Chain(
		isolation.NewSQLExecutor(db, format),
		isolation.Logging(log),
		isolation.Instrument(),
		isolation.TenantScope(scoper),
	)

	return &Store{db: db, driver: cfg.Driver, format: format, exec: exec, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{exec: s.exec}
}

func (s *Store) Tenants() *TenantRepo {
	return &TenantRepo{exec: s.exec}
}

func (s *Store) Settings() *SettingsRepo {
	return &SettingsRepo{exec: s.exec}
}

func (s *Store) LoginLogs() *LoginLogRepo {
	return &LoginLogRepo{exec: s.exec}
}

type scanner interface {
	Scan(dest ...any) error
}

// queryOne runs stmt and scans the first row with scan, returning
// errNoRows when the result is empty.
func queryOne(ctx context.Context, exec isolation.Executor, stmt isolation.Statement, scan func(scanner) error) error {
	rows, err := exec.Query(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return scan(rows)
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func page(offset, limit int) (uint64, uint64) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return uint64(offset), uint64(limit)
}
