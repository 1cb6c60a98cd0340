package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// MinSecretLength is the minimum number of bytes accepted for the token signing secret.
const MinSecretLength = 32

type Config interface {
	EnvConfig
	TokenConfig
	LoginConfig
	FederationConfig
	StoreConfig
	IsolationConfig
}

// settings is the environment-backed part of the configuration.
type settings struct {
	EnvVars
	Token
	Login
	Federation
	Store
	Isolation
}

type mainConfig struct {
	settings
	exemptions Exemptions
}

var _ Config = mainConfig{}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration from the given lookuper and validates it.
// A missing or short signing secret is a startup error.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var s settings
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &s,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("[config LoadWith] failed to process environment: %w", err)
	}

	exemptions, err := LoadExemptions(s.Isolation.ExemptionsFile)
	if err != nil {
		return nil, fmt.Errorf("[config LoadWith] %w", err)
	}

	c := mainConfig{settings: s, exemptions: exemptions}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("[config LoadWith] %w", err)
	}
	return c, nil
}

func (c mainConfig) validate() error {
	if len(c.Token.Secret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLength)
	}
	if c.Token.MaxSessions < 0 {
		return fmt.Errorf("MAX_SESSIONS must not be negative")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL and REFRESH_TTL must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return fmt.Errorf("REFRESH_TTL must not be shorter than TOKEN_TTL")
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Store.Driver)
	}
	return nil
}

func (c mainConfig) GetExemptions() Exemptions {
	return c.exemptions
}
