package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/isolation"
	"github.com/jrsteele09/go-tenant-auth/users"
)

var userColumns = []string{
	"id", "tenant_id", "username", "password_hash", "nickname", "email", "status",
	"roles", "permissions", "external_source", "external_id",
	"last_login_at", "last_login_ip", "created_at",
}

// UserRepo stores users in sys_user.
type UserRepo struct {
	exec isolation.Executor
}

var _ users.Repo = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	if user.Username == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "username is required")
	}
	if _, err := r.GetByUsername(ctx, user.Username); err == nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "username %q already exists", user.Username)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	roles, err := json.Marshal(nonNil(user.Roles))
	if err != nil {
		return err
	}
	perms, err := json.Marshal(nonNil(user.Permissions))
	if err != nil {
		return err
	}

	columns := []string{
		"id", "username", "password_hash", "nickname", "email", "status",
		"roles", "permissions", "external_source", "external_id",
		"last_login_at", "last_login_ip", "created_at",
	}
	values := []any{
		user.ID, user.Username, user.PasswordHash, user.Nickname, user.Email, int(user.Status),
		string(roles), string(perms), user.ExternalSource, user.ExternalID,
		millis(user.LastLoginAt), user.LastLoginIP, millis(user.CreatedAt),
	}
	// An explicit tenant is checked against the context by the scoper.
	if user.TenantID != "" {
		columns = append(columns, "tenant_id")
		values = append(values, user.TenantID)
	}

	if _, err := r.exec.Exec(ctx, isolation.Statement{
		ID:      "users.create",
		Kind:    isolation.KindInsert,
		Table:   TableUsers,
		Columns: columns,
		Values:  values,
	}); err != nil {
		return fmt.Errorf("creating user %s: %w", user.Username, err)
	}

	if user.TenantID == "" {
		created, err := r.GetByUsername(ctx, user.Username)
		if err != nil {
			return err
		}
		user.TenantID = created.TenantID
	}
	return nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	var u *users.User
	err := queryOne(ctx, r.exec, isolation.Statement{
		ID:      "users.getByUsername",
		Kind:    isolation.KindSelect,
		Table:   TableUsers,
		Columns: userColumns,
		Filter:  sq.Eq{"username": username},
		Limit:   1,
	}, func(s scanner) error {
		var err error
		u, err = scanUser(s)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "user %s", username)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	off, lim := page(offset, limit)
	rows, err := r.exec.Query(ctx, isolation.Statement{
		ID:      "users.list",
		Kind:    isolation.KindSelect,
		Table:   TableUsers,
		Columns: userColumns,
		OrderBy: []string{"username"},
		Limit:   lim,
		Offset:  off,
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*users.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) UpdateLoginInfo(ctx context.Context, userID string, at time.Time, ip string) error {
	return r.update(ctx, "users.updateLoginInfo", userID, map[string]any{
		"last_login_at": millis(at),
		"last_login_ip": ip,
	})
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.update(ctx, "users.updatePassword", userID, map[string]any{
		"password_hash": passwordHash,
	})
}

func (r *UserRepo) UpdateStatus(ctx context.Context, userID string, status users.Status) error {
	return r.update(ctx, "users.updateStatus", userID, map[string]any{
		"status": int(status),
	})
}

func (r *UserRepo) update(ctx context.Context, id, userID string, set map[string]any) error {
	res, err := r.exec.Exec(ctx, isolation.Statement{
		ID:     id,
		Kind:   isolation.KindUpdate,
		Table:  TableUsers,
		Set:    set,
		Filter: sq.Eq{"id": userID},
	})
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "user %s", userID)
	}
	return nil
}

func scanUser(s scanner) (*users.User, error) {
	var (
		u                            users.User
		status                       int
		roles, perms                 string
		lastLoginAt, createdAtMillis int64
	)
	if err := s.Scan(
		&u.ID, &u.TenantID, &u.Username, &u.PasswordHash, &u.Nickname, &u.Email, &status,
		&roles, &perms, &u.ExternalSource, &u.ExternalID,
		&lastLoginAt, &u.LastLoginIP, &createdAtMillis,
	); err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Status = users.Status(status)
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, fmt.Errorf("decoding roles of %s: %w", u.Username, err)
	}
	if err := json.Unmarshal([]byte(perms), &u.Permissions); err != nil {
		return nil, fmt.Errorf("decoding permissions of %s: %w", u.Username, err)
	}
	u.LastLoginAt = fromMillis(lastLoginAt)
	u.CreatedAt = fromMillis(createdAtMillis)
	return &u, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
