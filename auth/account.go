package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-tenant-auth/cache"
	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/utils"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/rs/zerolog"
)

const DefaultProfileCacheTTL = 5 * time.Minute

// Profile is the account view returned by the user info endpoint.
type Profile struct {
	UserID         string    `json:"userId"`
	Username       string    `json:"username"`
	Nickname       string    `json:"nickname,omitempty"`
	Email          string    `json:"email,omitempty"`
	TenantID       string    `json:"tenantId"`
	TenantCode     string    `json:"tenantCode,omitempty"`
	Status         string    `json:"status"`
	Roles          []string  `json:"roles"`
	Permissions    []string  `json:"permissions"`
	ExternalSource string    `json:"externalSource,omitempty"`
	LastLoginAt    time.Time `json:"lastLoginAt,omitzero"`
	LastLoginIP    string    `json:"lastLoginIp,omitempty"`
}

// Unlocker clears an account lock.
type Unlocker interface {
	Unlock(ctx context.Context, tenantID, username string) error
}

// AccountService covers self-service and administrative account operations.
type AccountService struct {
	users     users.Repo
	tokens    *token.Manager
	cache     cache.Cache
	cacheTTL  time.Duration
	unlocker  Unlocker
	publisher events.Publisher
	log       zerolog.Logger
}

type AccountOption func(*AccountService)

func WithProfileCache(c cache.Cache, ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithUnlocker(u Unlocker) AccountOption {
	return func(s *AccountService) {
		s.unlocker = u
	}
}

func WithAccountPublisher(p events.Publisher) AccountOption {
	return func(s *AccountService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithAccountLogger(log zerolog.Logger) AccountOption {
	return func(s *AccountService) {
		s.log = log
	}
}

func NewAccountService(userRepo users.Repo, tokens *token.Manager, options ...AccountOption) (*AccountService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("[auth NewAccountService] user repo is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[auth NewAccountService] token manager is required")
	}
	s := &AccountService{
		users:     userRepo,
		tokens:    tokens,
		cache:     cache.NewMemoryCache(nil),
		cacheTTL:  DefaultProfileCacheTTL,
		publisher: events.NopPublisher{},
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func profileKey(tenantID, username string) string {
	return utils.Key("profile", tenantID, username)
}

// Profile returns the principal's profile, read through the profile cache.
func (s *AccountService) Profile(ctx context.Context, p users.Principal) (*Profile, error) {
	key := profileKey(p.TenantID, p.Username)
	if cached, ok, err := cache.GetJSON[Profile](ctx, s.cache, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("profile cache read failed")
	} else if ok {
		return &cached, nil
	}

	user, err := s.users.GetByUsername(ctx, p.Username)
	if err != nil {
		return nil, err
	}
	profile := &Profile{
		UserID:         user.ID,
		Username:       user.Username,
		Nickname:       user.Nickname,
		Email:          user.Email,
		TenantID:       user.TenantID,
		TenantCode:     p.TenantCode,
		Status:         user.Status.String(),
		Roles:          user.Roles,
		Permissions:    user.Permissions,
		ExternalSource: user.ExternalSource,
		LastLoginAt:    user.LastLoginAt,
		LastLoginIP:    user.LastLoginIP,
	}
	if err := cache.SetJSON(ctx, s.cache, key, profile, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("profile cache write failed")
	}
	return profile, nil
}

// InvalidateProfile drops the cached profile of the event's account.
func (s *AccountService) InvalidateProfile(ctx context.Context, e events.Event) {
	if e.Username == "" {
		return
	}
	if err := s.cache.Delete(ctx, profileKey(e.TenantID, e.Username)); err != nil {
		s.log.Warn().Err(err).Str("username", e.Username).Msg("profile cache invalidation failed")
	}
}

// ChangePassword replaces the principal's password and ends all of its sessions.
func (s *AccountService) ChangePassword(ctx context.Context, p users.Principal, oldPassword, newPassword string) error {
	user, err := s.users.GetByUsername(ctx, p.Username)
	if err != nil {
		return err
	}
	if user.PasswordHash == "" || !users.CheckPasswordHash(oldPassword, user.PasswordHash) {
		return errors.Wrapf(errors.ErrAuthenticationFailed, "current password does not match")
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "%v", err)
	}
	hash, err := users.HashPassword(newPassword)
	if err != nil {
		return errors.Wrapf(errors.Join(errors.ErrInternal, err), "[AccountService ChangePassword] hash")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	ended := s.tokens.LogoutAll(p.TenantID, p.Username)
	s.log.Info().
		Str("tenant", p.TenantID).
		Str("username", p.Username).
		Int("sessions_ended", ended).
		Msg("password changed")
	s.publisher.Publish(ctx, events.Event{
		Type:     events.PasswordChanged,
		TenantID: p.TenantID,
		Username: p.Username,
		UserID:   p.UserID,
		Message:  fmt.Sprintf("password changed, %d sessions ended", ended),
	})
	return nil
}

// ListUsers lists users of the tenant in ctx.
func (s *AccountService) ListUsers(ctx context.Context, offset, limit int) ([]*users.User, error) {
	return s.users.List(ctx, offset, limit)
}

// Unlock clears the login lock of a user in the tenant carried by ctx.
func (s *AccountService) Unlock(ctx context.Context, username string) error {
	tc, ok := tenants.FromContext(ctx)
	if !ok {
		return errors.ErrTenantMissing
	}
	if s.unlocker == nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "account locking is disabled")
	}
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		return err
	}
	return s.unlocker.Unlock(ctx, tc.TenantID, username)
}
