package config

import (
	"strings"
	"time"
)

type FederationConfig interface {
	GetVerifierTimeout() time.Duration
	GetIAM() IAMSettings
	GetOAuth2() OAuth2Settings
}

// IAMSettings configures the OpenID Connect identity provider used by the IAM login type.
type IAMSettings struct {
	IssuerURL    string `env:"IAM_ISSUER_URL"`
	ClientID     string `env:"IAM_CLIENT_ID"`
	ClientSecret string `env:"IAM_CLIENT_SECRET"`
	RedirectURL  string `env:"IAM_REDIRECT_URL"`
}

func (s IAMSettings) Enabled() bool {
	return s.IssuerURL != "" && s.ClientID != ""
}

// OAuth2Settings configures the plain OAuth2 provider used by the OAUTH2 login type.
type OAuth2Settings struct {
	AuthURL      string `env:"OAUTH2_AUTH_URL"`
	TokenURL     string `env:"OAUTH2_TOKEN_URL"`
	UserInfoURL  string `env:"OAUTH2_USERINFO_URL"`
	ClientID     string `env:"OAUTH2_CLIENT_ID"`
	ClientSecret string `env:"OAUTH2_CLIENT_SECRET"`
	RedirectURL  string `env:"OAUTH2_REDIRECT_URL"`
	Scopes       string `env:"OAUTH2_SCOPES"`
}

func (s OAuth2Settings) Enabled() bool {
	return s.TokenURL != "" && s.UserInfoURL != "" && s.ClientID != ""
}

// ScopeList splits the space or comma separated scopes.
func (s OAuth2Settings) ScopeList() []string {
	return strings.FieldsFunc(s.Scopes, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

type Federation struct {
	VerifierTimeout time.Duration `env:"VERIFIER_TIMEOUT, default=10s"`
	IAM             IAMSettings
	OAuth2          OAuth2Settings
}

var _ FederationConfig = Federation{}

func (f Federation) GetVerifierTimeout() time.Duration {
	return f.VerifierTimeout
}

func (f Federation) GetIAM() IAMSettings {
	return f.IAM
}

func (f Federation) GetOAuth2() OAuth2Settings {
	return f.OAuth2
}
