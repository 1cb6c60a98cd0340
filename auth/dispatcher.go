// Package auth turns login attempts into token pairs. A Registry maps each
// login type to a LoginStrategy; the Dispatcher runs the shared steps around
// it (tenant resolution, lockout, status checks, issuing, events).
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/rs/zerolog"
)

// LockChecker reports whether an account is currently locked.
type LockChecker interface {
	Check(ctx context.Context, tenantID, username string) error
}

type Dispatcher struct {
	registry  *Registry
	tenants   tenants.Repo
	users     users.Repo
	tokens    *token.Manager
	locks     LockChecker
	publisher events.Publisher
	log       zerolog.Logger
	nowFunc   func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithLockChecker(l LockChecker) DispatcherOption {
	return func(d *Dispatcher) {
		d.locks = l
	}
}

func WithPublisher(p events.Publisher) DispatcherOption {
	return func(d *Dispatcher) {
		if p != nil {
			d.publisher = p
		}
	}
}

func WithLogger(log zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = log
	}
}

func WithNowFunc(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.nowFunc = now
	}
}

func NewDispatcher(registry *Registry, tenantRepo tenants.Repo, userRepo users.Repo, tokens *token.Manager, options ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("[auth NewDispatcher] registry is required")
	}
	if tenantRepo == nil {
		return nil, fmt.Errorf("[auth NewDispatcher] tenant repo is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("[auth NewDispatcher] user repo is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[auth NewDispatcher] token manager is required")
	}

	d := &Dispatcher{
		registry:  registry,
		tenants:   tenantRepo,
		users:     userRepo,
		tokens:    tokens,
		publisher: events.NopPublisher{},
		log:       zerolog.Nop(),
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(d)
	}
	return d, nil
}

// Login authenticates the attempt and issues a token pair for its device.
// Every outcome is published as LoginSucceeded or LoginFailed.
func (d *Dispatcher) Login(ctx context.Context, attempt LoginAttempt) (*LoginResponse, error) {
	// A tenant inherited from the request is unverified until resolved below.
	ctx = tenants.WithTenant(ctx, tenants.Context{})

	a := attempt
	a.LoginType = normalizeType(a.LoginType)
	if a.LoginType == "" {
		a.LoginType = LoginTypePassword
	}
	a.Username = strings.TrimSpace(a.Username)
	a.TenantID = strings.TrimSpace(a.TenantID)
	if strings.TrimSpace(a.DeviceID) == "" {
		a.DeviceID = token.DefaultDeviceID
	}

	strategy, err := d.registry.Lookup(a.LoginType)
	if err != nil {
		return nil, d.fail(ctx, &a, events.ReasonUnsupportedType, err)
	}
	if err := strategy.ValidateRequest(&a); err != nil {
		return nil, d.fail(ctx, &a, events.ReasonInvalidRequest, err)
	}

	tenant, err := d.tenants.Get(ctx, a.TenantID)
	if err != nil {
		if errors.Is(err, errors.ErrTenantNotFound) || errors.Is(err, errors.ErrNotFound) {
			return nil, d.fail(ctx, &a, events.ReasonUnknownTenant, errors.Wrapf(errors.ErrAuthenticationFailed, "unknown tenant"))
		}
		return nil, d.fail(ctx, &a, events.ReasonInternalError, errors.Wrapf(err, "[Dispatcher Login] resolve tenant"))
	}
	if !tenant.Enabled() {
		return nil, d.fail(ctx, &a, events.ReasonUnknownTenant, errors.Wrapf(errors.ErrAuthenticationFailed, "tenant disabled"))
	}
	ctx = tenants.WithTenant(ctx, tenant.Scope())

	if a.Username != "" {
		if err := d.checkLock(ctx, a.TenantID, a.Username); err != nil {
			return nil, d.fail(ctx, &a, events.ReasonAccountLocked, err)
		}
	}

	user, err := strategy.Authenticate(ctx, &a)
	if err != nil {
		reason := events.ReasonInternalError
		switch {
		case errors.Is(err, errors.ErrVerifierUnavailable):
			reason = events.ReasonVerifierDown
		case errors.Is(err, errors.ErrAuthenticationFailed):
			reason = events.ReasonBadCredentials
		}
		return nil, d.fail(ctx, &a, reason, err)
	}

	// Federated logins learn the username from the provider.
	if a.Username != user.Username {
		a.Username = user.Username
		if err := d.checkLock(ctx, a.TenantID, a.Username); err != nil {
			return nil, d.fail(ctx, &a, events.ReasonAccountLocked, err)
		}
	}

	switch user.Status {
	case users.StatusEnabled:
	case users.StatusDeparted:
		return nil, d.fail(ctx, &a, events.ReasonAccountDeparted, errors.Wrapf(errors.ErrAuthenticationFailed, "account departed"))
	default:
		return nil, d.fail(ctx, &a, events.ReasonAccountDisabled, errors.Wrapf(errors.ErrAuthenticationFailed, "account disabled"))
	}

	principal := user.Principal(tenant.Code)
	issued, err := d.tokens.Issue(user.Username, a.DeviceID, principal)
	if err != nil {
		return nil, d.fail(ctx, &a, events.ReasonTokenIssueFailed, errors.Wrapf(errors.Join(errors.ErrInternal, err), "[Dispatcher Login] issue token"))
	}

	if err := d.users.UpdateLoginInfo(ctx, user.ID, d.nowFunc().UTC(), a.IP); err != nil {
		d.log.Warn().Err(err).Str("tenant", a.TenantID).Str("username", a.Username).Msg("failed to record last login")
	}

	metrics.LoginsTotal.WithLabelValues(a.LoginType, "success").Inc()
	d.log.Info().
		Str("tenant", a.TenantID).
		Str("username", a.Username).
		Str("login_type", a.LoginType).
		Str("device", a.DeviceID).
		Msg("login succeeded")
	d.publisher.Publish(ctx, d.event(events.LoginSucceeded, &a, user.ID, "", "login succeeded"))

	return &LoginResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		TokenType:    issued.TokenType,
		ExpiresIn:    issued.ExpiresIn,
		ExpiresAt:    issued.ExpiresAt,
		User:         summarize(principal, user.Nickname, a.DeviceID),
	}, nil
}

// Refresh rotates a token pair. The account must still exist and be enabled.
func (d *Dispatcher) Refresh(ctx context.Context, refreshToken, deviceID string) (*LoginResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "missing refresh token")
	}
	if strings.TrimSpace(deviceID) == "" {
		deviceID = token.DefaultDeviceID
	}

	var nickname string
	check := func(p users.Principal) error {
		scoped := tenants.WithTenant(ctx, tenants.Context{TenantID: p.TenantID, TenantCode: p.TenantCode})
		user, err := d.users.GetByUsername(scoped, p.Username)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.Wrapf(errors.ErrTokenInvalid, "account no longer exists")
			}
			return err
		}
		if !user.CanLogin() {
			return errors.Wrapf(errors.ErrAuthenticationFailed, "account %s", user.Status)
		}
		nickname = user.Nickname
		return nil
	}

	issued, p, err := d.tokens.Refresh(refreshToken, deviceID, check)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		TokenType:    issued.TokenType,
		ExpiresIn:    issued.ExpiresIn,
		ExpiresAt:    issued.ExpiresAt,
		User:         summarize(*p, nickname, deviceID),
	}, nil
}

// Logout ends the principal's session on deviceID.
func (d *Dispatcher) Logout(ctx context.Context, p users.Principal, deviceID string) bool {
	if strings.TrimSpace(deviceID) == "" {
		deviceID = token.DefaultDeviceID
	}
	ok := d.tokens.Logout(p.TenantID, p.Username, deviceID)
	if ok {
		d.publisher.Publish(ctx, events.Event{
			Type:     events.Logout,
			TenantID: p.TenantID,
			Username: p.Username,
			UserID:   p.UserID,
			DeviceID: deviceID,
			Reason:   events.ReasonLogout,
			Message:  "logout",
		})
	}
	return ok
}

// LogoutAll ends every session of the principal's account.
func (d *Dispatcher) LogoutAll(ctx context.Context, p users.Principal) int {
	n := d.tokens.LogoutAll(p.TenantID, p.Username)
	if n > 0 {
		d.publisher.Publish(ctx, events.Event{
			Type:     events.Logout,
			TenantID: p.TenantID,
			Username: p.Username,
			UserID:   p.UserID,
			Reason:   events.ReasonLogoutAll,
			Message:  fmt.Sprintf("logout of %d sessions", n),
		})
	}
	return n
}

func (d *Dispatcher) checkLock(ctx context.Context, tenantID, username string) error {
	if d.locks == nil {
		return nil
	}
	return d.locks.Check(ctx, tenantID, username)
}

func (d *Dispatcher) fail(ctx context.Context, a *LoginAttempt, reason string, err error) error {
	metrics.LoginsTotal.WithLabelValues(a.LoginType, reason).Inc()
	d.log.Info().
		Err(err).
		Str("tenant", a.TenantID).
		Str("username", a.Username).
		Str("login_type", a.LoginType).
		Str("reason", reason).
		Msg("login failed")
	d.publisher.Publish(ctx, d.event(events.LoginFailed, a, "", reason, err.Error()))
	return err
}

func (d *Dispatcher) event(t events.Type, a *LoginAttempt, userID, reason, msg string) events.Event {
	return events.Event{
		Type:       t,
		TenantID:   a.TenantID,
		Username:   a.Username,
		UserID:     userID,
		DeviceID:   a.DeviceID,
		LoginType:  a.LoginType,
		IP:         a.IP,
		UserAgent:  a.UserAgent,
		Reason:     reason,
		Message:    msg,
		OccurredAt: d.nowFunc(),
	}
}
