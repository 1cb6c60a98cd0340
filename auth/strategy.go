package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/users"
)

// LoginStrategy authenticates one kind of login.
type LoginStrategy interface {
	Type() string
	// ValidateRequest checks the fields this strategy needs. Failures wrap errors.ErrInvalidRequest.
	ValidateRequest(a *LoginAttempt) error
	// Authenticate resolves the attempt to a local user. ctx carries the
	// attempt's tenant. Rejections wrap errors.ErrAuthenticationFailed.
	Authenticate(ctx context.Context, a *LoginAttempt) (*users.User, error)
}

// Registry maps login types to strategies. It is fixed at construction.
type Registry struct {
	strategies map[string]LoginStrategy
	types      []string
}

// NewRegistry registers every strategy under its upper-cased type.
func NewRegistry(strategies ...LoginStrategy) (*Registry, error) {
	r := &Registry{strategies: make(map[string]LoginStrategy, len(strategies))}
	for _, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("[auth NewRegistry] nil strategy")
		}
		t := normalizeType(s.Type())
		if t == "" {
			return nil, fmt.Errorf("[auth NewRegistry] strategy %T has no login type", s)
		}
		if _, dup := r.strategies[t]; dup {
			return nil, fmt.Errorf("[auth NewRegistry] duplicate login type %q", t)
		}
		r.strategies[t] = s
		r.types = append(r.types, t)
	}
	return r, nil
}

func (r *Registry) Lookup(loginType string) (LoginStrategy, error) {
	s, ok := r.strategies[normalizeType(loginType)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnsupportedLoginType, "%q", loginType)
	}
	return s, nil
}

// Types lists the registered login types in registration order.
func (r *Registry) Types() []string {
	return slices.Clone(r.types)
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
