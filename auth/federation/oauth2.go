package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/utils"
	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

type OAuth2Config struct {
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// OAuth2Verifier exchanges a code at a plain OAuth2 provider and reads the
// user from its userinfo endpoint.
type OAuth2Verifier struct {
	conf        *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func NewOAuth2Verifier(cfg OAuth2Config) (*OAuth2Verifier, error) {
	if cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("[federation NewOAuth2Verifier] token and userinfo urls are required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("[federation NewOAuth2Verifier] client id is required")
	}
	return &OAuth2Verifier{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

var _ auth.Verifier = (*OAuth2Verifier)(nil)

func (v *OAuth2Verifier) Verify(ctx context.Context, authCode, redirectURI string) (*auth.Identity, error) {
	ctx = withHTTPClient(ctx, v.httpClient)

	conf := v.conf
	if redirectURI != "" {
		c := *v.conf
		c.RedirectURL = redirectURI
		conf = &c
	}

	tok, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return nil, exchangeError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVerifierUnavailable, "userinfo: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVerifierUnavailable, "userinfo read: %v", err)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrVerifierUnavailable, "userinfo status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.Wrapf(err, "userinfo decode")
	}

	return &auth.Identity{
		Subject:  utils.FirstNonEmpty(field(info, "sub"), field(info, "id")),
		Username: utils.FirstNonEmpty(field(info, "preferred_username"), field(info, "username"), field(info, "login")),
		Email:    field(info, "email"),
		Nickname: utils.FirstNonEmpty(field(info, "nickname"), field(info, "name")),
	}, nil
}

// field reads a string or numeric claim.
func field(info map[string]any, key string) string {
	switch v := info[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
