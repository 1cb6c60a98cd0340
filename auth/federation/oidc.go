package federation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/utils"
	"golang.org/x/oauth2"
)

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// OIDCVerifier exchanges a code at an OpenID Connect provider and verifies
// the returned ID token. Provider discovery happens on first use.
type OIDCVerifier struct {
	cfg OIDCConfig

	mu       sync.RWMutex
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("[federation NewOIDCVerifier] issuer url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("[federation NewOIDCVerifier] client id is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &OIDCVerifier{cfg: cfg}, nil
}

var _ auth.Verifier = (*OIDCVerifier)(nil)

func (v *OIDCVerifier) discover(ctx context.Context) (*oauth2.Config, *oidc.IDTokenVerifier, error) {
	v.mu.RLock()
	conf, verifier := v.oauth, v.verifier
	v.mu.RUnlock()
	if conf != nil {
		return conf, verifier, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.oauth != nil {
		return v.oauth, v.verifier, nil
	}

	// The provider keeps its context for later key set fetches.
	provider, err := oidc.NewProvider(context.WithoutCancel(ctx), v.cfg.IssuerURL)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.ErrVerifierUnavailable, "discover %s: %v", v.cfg.IssuerURL, err)
	}
	v.oauth = &oauth2.Config{
		ClientID:     v.cfg.ClientID,
		ClientSecret: v.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  v.cfg.RedirectURL,
		Scopes:       v.cfg.Scopes,
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.cfg.ClientID})
	return v.oauth, v.verifier, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, authCode, redirectURI string) (*auth.Identity, error) {
	ctx = withHTTPClient(ctx, v.cfg.HTTPClient)

	conf, verifier, err := v.discover(ctx)
	if err != nil {
		return nil, err
	}
	if redirectURI != "" {
		c := *conf
		c.RedirectURL = redirectURI
		conf = &c
	}

	tok, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return nil, exchangeError(err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrapf(err, "id token verification")
	}

	var claims struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		Nickname          string `json:"nickname"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrapf(err, "id token claims")
	}

	return &auth.Identity{
		Subject:  idToken.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Nickname: utils.FirstNonEmpty(claims.Nickname, claims.Name),
	}, nil
}
