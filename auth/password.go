package auth

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/users"
)

// dummyHash is compared against when the user does not exist so that unknown
// and known usernames take the same time to reject.
var dummyHash = sync.OnceValue(func() string {
	h, _ := users.HashPassword("not-a-real-password-0")
	return h
})

// PasswordStrategy checks a username and password against the stored bcrypt hash.
type PasswordStrategy struct {
	users users.Repo
}

func NewPasswordStrategy(repo users.Repo) *PasswordStrategy {
	return &PasswordStrategy{users: repo}
}

var _ LoginStrategy = (*PasswordStrategy)(nil)

func (s *PasswordStrategy) Type() string {
	return LoginTypePassword
}

func (s *PasswordStrategy) ValidateRequest(a *LoginAttempt) error {
	return validateFields(a, "Username", "TenantID", "Password")
}

func (s *PasswordStrategy) Authenticate(ctx context.Context, a *LoginAttempt) (*users.User, error) {
	user, err := s.users.GetByUsername(ctx, a.Username)
	if errors.Is(err, errors.ErrNotFound) {
		users.CheckPasswordHash(a.Password, dummyHash())
		return nil, errors.Wrapf(errors.ErrAuthenticationFailed, "bad credentials")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[PasswordStrategy] load user")
	}
	if user.PasswordHash == "" || !users.CheckPasswordHash(a.Password, user.PasswordHash) {
		return nil, errors.Wrapf(errors.ErrAuthenticationFailed, "bad credentials")
	}
	return user, nil
}
