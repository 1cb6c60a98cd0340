package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/utils"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/users"
)

const DefaultVerifierTimeout = 10 * time.Second

// Identity is what an external provider asserts about the user.
type Identity struct {
	Subject  string
	Username string
	Email    string
	Nickname string
}

// Verifier exchanges an authorization code with an external provider.
// Transport failures should wrap errors.ErrVerifierUnavailable.
type Verifier interface {
	Verify(ctx context.Context, authCode, redirectURI string) (*Identity, error)
}

// FederatedStrategy authenticates through a Verifier and provisions a local
// user the first time an external identity logs in.
type FederatedStrategy struct {
	loginType    string
	verifier     Verifier
	users        users.Repo
	timeout      time.Duration
	defaultRoles []string
	nowFunc      func() time.Time
}

type FederatedOption func(*FederatedStrategy)

func WithVerifierTimeout(d time.Duration) FederatedOption {
	return func(s *FederatedStrategy) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDefaultRoles sets the roles given to provisioned users.
func WithDefaultRoles(roles ...string) FederatedOption {
	return func(s *FederatedStrategy) {
		s.defaultRoles = roles
	}
}

func WithFederatedNowFunc(now func() time.Time) FederatedOption {
	return func(s *FederatedStrategy) {
		s.nowFunc = now
	}
}

func NewIAMStrategy(v Verifier, repo users.Repo, options ...FederatedOption) *FederatedStrategy {
	return newFederatedStrategy(LoginTypeIAM, v, repo, options...)
}

func NewOAuth2Strategy(v Verifier, repo users.Repo, options ...FederatedOption) *FederatedStrategy {
	return newFederatedStrategy(LoginTypeOAuth2, v, repo, options...)
}

func newFederatedStrategy(loginType string, v Verifier, repo users.Repo, options ...FederatedOption) *FederatedStrategy {
	s := &FederatedStrategy{
		loginType:    loginType,
		verifier:     v,
		users:        repo,
		timeout:      DefaultVerifierTimeout,
		defaultRoles: []string{string(users.RoleTenantUser)},
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ LoginStrategy = (*FederatedStrategy)(nil)

func (s *FederatedStrategy) Type() string {
	return s.loginType
}

func (s *FederatedStrategy) ValidateRequest(a *LoginAttempt) error {
	return validateFields(a, "TenantID", "AuthCode", "RedirectURI")
}

func (s *FederatedStrategy) Authenticate(ctx context.Context, a *LoginAttempt) (*users.User, error) {
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.verifier.Verify(vctx, a.AuthCode, a.RedirectURI)
	if err != nil {
		if errors.Is(err, errors.ErrVerifierUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.Join(errors.ErrAuthenticationFailed, errors.ErrVerifierUnavailable), "%s verifier: %v", s.loginType, err)
		}
		return nil, errors.Wrapf(errors.ErrAuthenticationFailed, "%s verifier rejected code: %v", s.loginType, err)
	}

	username := strings.TrimSpace(utils.FirstNonEmpty(id.Username, id.Email, id.Subject))
	if username == "" || id.Subject == "" {
		return nil, errors.Wrapf(errors.ErrAuthenticationFailed, "%s identity has no subject", s.loginType)
	}

	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return s.provision(ctx, username, id)
	case err != nil:
		return nil, errors.Wrapf(err, "[FederatedStrategy] load user")
	}

	// A local account with the same name is not taken over by an external identity.
	if user.ExternalSource != s.loginType || user.ExternalID != id.Subject {
		return nil, errors.Wrapf(errors.ErrAuthenticationFailed, "%s is not linked to this %s identity", username, s.loginType)
	}
	return user, nil
}

func (s *FederatedStrategy) provision(ctx context.Context, username string, id *Identity) (*users.User, error) {
	user := &users.User{
		ID:             uuid.NewString(),
		TenantID:       tenants.ID(ctx),
		Username:       username,
		Nickname:       utils.FirstNonEmpty(id.Nickname, username),
		Email:          id.Email,
		Status:         users.StatusEnabled,
		Roles:          append([]string(nil), s.defaultRoles...),
		ExternalSource: s.loginType,
		ExternalID:     id.Subject,
		CreatedAt:      s.nowFunc().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, errors.Wrapf(err, "[FederatedStrategy] provision %s", username)
	}
	return user, nil
}
