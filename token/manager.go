package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/rs/zerolog"
)

const TokenType = "Bearer"

// Issued is the token pair returned by Issue and Refresh.
type Issued struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int       `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Manager issues and validates bearer tokens and owns the session registry
// that enforces the per-account concurrent session limit.
type Manager struct {
	signer             Signer
	issuer             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	clockSkew          time.Duration
	maxSessions        int
	sessions           *registry
	publisher          events.Publisher
	log                zerolog.Logger
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

// WithClockSkew sets the leeway applied to exp, nbf and iat checks.
func WithClockSkew(skew time.Duration) ManagerOption {
	return func(m *Manager) {
		m.clockSkew = skew
	}
}

// WithMaxSessions limits concurrent sessions per account; 0 is unlimited.
func WithMaxSessions(maxSessions int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = maxSessions
	}
}

func WithPublisher(publisher events.Publisher) ManagerOption {
	return func(m *Manager) {
		m.publisher = publisher
	}
}

func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, fmt.Errorf("[token New] signer is required")
	}

	m := &Manager{
		signer:    signer,
		issuer:    "go-tenant-auth",
		publisher: events.NopPublisher{},
		log:       zerolog.Nop(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry <= 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.refreshTokenExpiry < m.accessTokenExpiry {
		m.refreshTokenExpiry = 24 * time.Hour
	}
	if m.maxSessions < 0 {
		m.maxSessions = 0
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	m.sessions = newRegistry(m.clockSkew)
	return m, nil
}

// AccessTokenExpiry returns the configured access token lifetime.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// Issue signs a token pair for the principal on deviceID and registers the
// session, evicting the account's oldest sessions when the limit is reached.
func (m *Manager) Issue(username, deviceID string, p users.Principal) (*Issued, error) {
	if strings.TrimSpace(username) == "" || p.TenantID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "[Manager Issue] username and tenant are required")
	}
	deviceID = normalizeDevice(deviceID)
	p.Username = username
	now := m.nowFunc()

	s, issued, err := m.mint(username, deviceID, p, now)
	if err != nil {
		return nil, err
	}

	k := accountKey{tenantID: p.TenantID, username: username}
	evicted, expired := m.sessions.admit(k, s, m.maxSessions, now)
	m.sessionsEnded(expired, events.SessionExpired, events.ReasonExpired)
	m.sessionsEnded(evicted, events.SessionInvalidated, events.ReasonEvicted)
	return issued, nil
}

// Validate verifies an access token presented from deviceID and returns its
// principal. Tokens whose session was logged out or evicted are invalid.
// Expired tokens return ErrTokenExpired and their session is removed.
func (m *Manager) Validate(rawToken, deviceID string) (*users.Principal, error) {
	deviceID = normalizeDevice(deviceID)

	claims, err := m.parse(rawToken, useAccess)
	if errors.Is(err, errors.ErrTokenExpired) {
		metrics.TokenValidationsTotal.WithLabelValues("expired").Inc()
		k := accountKey{tenantID: claims.TenantID, username: claims.Subject}
		if s, ok := m.sessions.expireToken(k, claims.DeviceID, claims.ID); ok {
			m.sessionsEnded([]*Session{&s}, events.SessionExpired, events.ReasonExpired)
		}
		return nil, err
	}
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if claims.DeviceID != deviceID {
		metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "token was issued to another device")
	}

	k := accountKey{tenantID: claims.TenantID, username: claims.Subject}
	s, ok := m.sessions.lookup(k, deviceID)
	if !ok || s.TokenID != claims.ID {
		metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "session is no longer active")
	}

	metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
	p := claims.principal()
	return &p, nil
}

// Refresh exchanges a refresh token for a new token pair on the same device.
// check, when set, can reject the refresh (for example a disabled account)
// before anything is rotated.
func (m *Manager) Refresh(rawRefreshToken, deviceID string, check func(users.Principal) error) (*Issued, *users.Principal, error) {
	deviceID = normalizeDevice(deviceID)

	claims, err := m.parse(rawRefreshToken, useRefresh)
	if err != nil {
		return nil, nil, err
	}
	if claims.DeviceID != deviceID {
		return nil, nil, errors.Wrapf(errors.ErrTokenInvalid, "refresh token was issued to another device")
	}

	now := m.nowFunc()
	k := accountKey{tenantID: claims.TenantID, username: claims.Subject}
	p, ok := m.sessions.refreshGrant(k, deviceID, claims.ID, now)
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrTokenInvalid, "refresh token is no longer active")
	}
	if check != nil {
		if err := check(p); err != nil {
			return nil, nil, err
		}
	}

	s, issued, err := m.mint(claims.Subject, deviceID, p, now)
	if err != nil {
		return nil, nil, err
	}
	evicted, expired, ok := m.sessions.rotate(k, claims.ID, s, m.maxSessions, now)
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrTokenInvalid, "refresh token is no longer active")
	}
	m.sessionsEnded(expired, events.SessionExpired, events.ReasonExpired)
	m.sessionsEnded(evicted, events.SessionInvalidated, events.ReasonEvicted)
	return issued, &p, nil
}

// Logout ends the session of one device. It reports whether a session was active.
func (m *Manager) Logout(tenantID, username, deviceID string) bool {
	_, ok := m.sessions.remove(accountKey{tenantID: tenantID, username: username}, normalizeDevice(deviceID))
	if ok {
		metrics.SessionsEndedTotal.WithLabelValues(events.ReasonLogout).Inc()
	}
	return ok
}

// LogoutAll ends every session of the account and returns how many were active.
func (m *Manager) LogoutAll(tenantID, username string) int {
	removed := m.sessions.removeAll(accountKey{tenantID: tenantID, username: username})
	metrics.SessionsEndedTotal.WithLabelValues(events.ReasonLogout).Add(float64(len(removed)))
	return len(removed)
}

// ActiveSessions returns the number of unexpired sessions of the account.
func (m *Manager) ActiveSessions(tenantID, username string) int {
	return len(m.Sessions(tenantID, username))
}

// Sessions returns the account's unexpired sessions, oldest first.
func (m *Manager) Sessions(tenantID, username string) []Session {
	return m.sessions.list(accountKey{tenantID: tenantID, username: username}, m.nowFunc())
}

// PurgeExpired removes expired sessions from every account and returns how many it removed.
func (m *Manager) PurgeExpired() int {
	expired := m.sessions.sweep(m.nowFunc())
	ended := make([]*Session, 0, len(expired))
	for i := range expired {
		ended = append(ended, &expired[i])
	}
	m.sessionsEnded(ended, events.SessionExpired, events.ReasonExpired)
	return len(expired)
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgeExpired(); n > 0 {
				m.log.Debug().Int("sessions", n).Msg("purged expired sessions")
			}
		}
	}
}

func (m *Manager) mint(username, deviceID string, p users.Principal, now time.Time) (*Session, *Issued, error) {
	accessID := uuid.New().String()
	refreshID := uuid.New().String()
	expiresAt := now.Add(m.accessTokenExpiry)
	refreshExpiresAt := now.Add(m.refreshTokenExpiry)

	accessToken, err := m.signer.Sign(newClaims(p, deviceID, useAccess, jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        accessID,
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("[Manager mint] access token: %w", err)
	}

	refreshToken, err := m.signer.Sign(newClaims(p, deviceID, useRefresh, jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(refreshExpiresAt),
		ID:        refreshID,
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("[Manager mint] refresh token: %w", err)
	}

	s := &Session{
		TenantID:         p.TenantID,
		Username:         username,
		DeviceID:         deviceID,
		TokenID:          accessID,
		RefreshID:        refreshID,
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		principal:        p.Clone(),
	}
	return s, &Issued{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenType,
		ExpiresIn:    int(m.accessTokenExpiry.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// parse verifies the signature and registered claims of rawToken. On
// ErrTokenExpired the returned claims are populated; the signature has
// already been verified at that point.
func (m *Manager) parse(rawToken, use string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "empty token")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && claims.Issuer == m.issuer:
		if claims.TokenUse != use || claims.Subject == "" || claims.TenantID == "" {
			return nil, errors.Wrapf(errors.ErrTokenInvalid, "malformed token")
		}
		return claims, errors.Wrapf(errors.ErrTokenExpired, "token expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
	default:
		return nil, fmt.Errorf("%w: %v", errors.ErrTokenInvalid, err)
	}

	if claims.TokenUse != use {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "token is not a %s token", use)
	}
	if claims.Subject == "" || claims.TenantID == "" || claims.ID == "" {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "malformed token")
	}
	return claims, nil
}

func (m *Manager) sessionsEnded(ended []*Session, eventType events.Type, reason string) {
	if len(ended) == 0 {
		return
	}
	metrics.SessionsEndedTotal.WithLabelValues(reason).Add(float64(len(ended)))
	for _, s := range ended {
		ctx := tenants.WithTenant(context.Background(), tenants.Context{TenantID: s.TenantID, TenantCode: s.principal.TenantCode})
		m.log.Debug().
			Str("tenant", s.TenantID).
			Str("username", s.Username).
			Str("device", s.DeviceID).
			Str("reason", reason).
			Msg("session ended")
		m.publisher.Publish(ctx, events.Event{
			Type:     eventType,
			TenantID: s.TenantID,
			Username: s.Username,
			UserID:   s.principal.UserID,
			DeviceID: s.DeviceID,
			Reason:   reason,
		})
	}
}
