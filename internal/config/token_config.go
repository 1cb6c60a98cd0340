package config

import "time"

type TokenConfig interface {
	GetSigningSecret() string
	GetIssuer() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetClockSkew() time.Duration
	GetMaxSessions() int
	GetSessionJanitorInterval() time.Duration
}

type Token struct {
	Secret          string        `env:"JWT_SECRET"`
	Issuer          string        `env:"JWT_ISSUER, default=go-tenant-auth"`
	AccessTTL       time.Duration `env:"TOKEN_TTL, default=1h"`
	RefreshTTL      time.Duration `env:"REFRESH_TTL, default=24h"`
	ClockSkew       time.Duration `env:"CLOCK_SKEW, default=60s"`
	MaxSessions     int           `env:"MAX_SESSIONS, default=0"`
	JanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL, default=1m"`
}

var _ TokenConfig = Token{}

func (t Token) GetSigningSecret() string {
	return t.Secret
}

func (t Token) GetIssuer() string {
	return t.Issuer
}

func (t Token) GetAccessTokenExpiry() time.Duration {
	return t.AccessTTL
}

func (t Token) GetRefreshTokenExpiry() time.Duration {
	return t.RefreshTTL
}

func (t Token) GetClockSkew() time.Duration {
	return t.ClockSkew
}

// GetMaxSessions returns the per-account concurrent session limit, 0 meaning unlimited.
func (t Token) GetMaxSessions() int {
	return t.MaxSessions
}

func (t Token) GetSessionJanitorInterval() time.Duration {
	return t.JanitorInterval
}
