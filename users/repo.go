package users

import (
	"context"
	"time"
)

// Repo stores users. Every method is scoped to the tenant carried by ctx;
// implementations return errors.ErrNotFound for unknown users.
type Repo interface {
	Create(ctx context.Context, user *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
	UpdateLoginInfo(ctx context.Context, userID string, at time.Time, ip string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateStatus(ctx context.Context, userID string, status Status) error
}
