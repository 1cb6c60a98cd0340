package isolation

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/rs/zerolog"
)

// Executor runs structured statements.
type Executor interface {
	Query(ctx context.Context, stmt Statement) (*sql.Rows, error)
	Exec(ctx context.Context, stmt Statement) (sql.Result, error)
}

// Middleware wraps an Executor.
type Middleware func(Executor) Executor

// Chain wraps exec with mw so that mw[0] is the outermost middleware.
func Chain(exec Executor, mw ...Middleware) Executor {
	for i := len(mw) - 1; i >= 0; i-- {
		exec = mw[i](exec)
	}
	return exec
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlExecutor struct {
	db     DBTX
	format sq.PlaceholderFormat
}

// NewSQLExecutor renders statements with format and runs them on db.
func NewSQLExecutor(db DBTX, format sq.PlaceholderFormat) Executor {
	return &sqlExecutor{db: db, format: format}
}

func (e *sqlExecutor) Query(ctx context.Context, stmt Statement) (*sql.Rows, error) {
	query, args, err := stmt.ToSQL(e.format)
	if err != nil {
		return nil, err
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *sqlExecutor) Exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	query, args, err := stmt.ToSQL(e.format)
	if err != nil {
		return nil, err
	}
	return e.db.ExecContext(ctx, query, args...)
}

type scopedExecutor struct {
	next   Executor
	scoper *Scoper
}

// TenantScope applies scoper to every statement before it reaches the next executor.
func TenantScope(scoper *Scoper) Middleware {
	return func(next Executor) Executor {
		return &scopedExecutor{next: next, scoper: scoper}
	}
}

func (e *scopedExecutor) scope(ctx context.Context, stmt Statement) (Statement, error) {
	scoped, decision, err := e.scoper.Scope(ctx, stmt)
	metrics.IsolationDecisionsTotal.WithLabelValues(stmt.Kind.String(), string(decision)).Inc()
	return scoped, err
}

func (e *scopedExecutor) Query(ctx context.Context, stmt Statement) (*sql.Rows, error) {
	scoped, err := e.scope(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return e.next.Query(ctx, scoped)
}

func (e *scopedExecutor) Exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	scoped, err := e.scope(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return e.next.Exec(ctx, scoped)
}

type loggingExecutor struct {
	next Executor
	log  zerolog.Logger
}

// Logging logs each statement with its duration at debug level and failures at warn level.
func Logging(log zerolog.Logger) Middleware {
	return func(next Executor) Executor {
		return &loggingExecutor{next: next, log: log}
	}
}

func (e *loggingExecutor) Query(ctx context.Context, stmt Statement) (*sql.Rows, error) {
	start := time.Now()
	rows, err := e.next.Query(ctx, stmt)
	e.record(stmt, start, err)
	return rows, err
}

func (e *loggingExecutor) Exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	start := time.Now()
	res, err := e.next.Exec(ctx, stmt)
	e.record(stmt, start, err)
	return res, err
}

func (e *loggingExecutor) record(stmt Statement, start time.Time, err error) {
	ev := e.log.Debug()
	if err != nil {
		ev = e.log.Warn().Err(err)
	}
	ev.Str("statement", stmt.ID).
		Str("kind", stmt.Kind.String()).
		Str("table", stmt.Table).
		Dur("duration", time.Since(start)).
		Msg("statement executed")
}

type instrumentedExecutor struct {
	next Executor
}

// Instrument records statement latency in metrics.StatementDuration.
func Instrument() Middleware {
	return func(next Executor) Executor {
		return &instrumentedExecutor{next: next}
	}
}

func (e *instrumentedExecutor) Query(ctx context.Context, stmt Statement) (*sql.Rows, error) {
	start := time.Now()
	rows, err := e.next.Query(ctx, stmt)
	observe(stmt, start, err)
	return rows, err
}

func (e *instrumentedExecutor) Exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	start := time.Now()
	res, err := e.next.Exec(ctx, stmt)
	observe(stmt, start, err)
	return res, err
}

func observe(stmt Statement, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StatementDuration.WithLabelValues(stmt.Kind.String(), outcome).Observe(time.Since(start).Seconds())
}
