package federation_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-auth/auth/federation"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

const clientID = "tenant-auth"

type provider struct {
	t      *testing.T
	key    *rsa.PrivateKey
	server *httptest.Server
	down   bool
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &provider{t: t, key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /keys", p.keys)
	mux.HandleFunc("POST /token", p.token)
	mux.HandleFunc("GET /userinfo", p.userinfo)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *provider) discovery(w http.ResponseWriter, _ *http.Request) {
	base := p.server.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/keys",
		"userinfo_endpoint":                     base + "/userinfo",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *provider) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(p.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(p.key.E)).Bytes()),
		}},
	})
}

func (p *provider) token(w http.ResponseWriter, r *http.Request) {
	if p.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if r.FormValue("code") != "good-code" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	now := time.Now()
	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                p.server.URL,
		"aud":                clientID,
		"sub":                "sub-42",
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"email":              "erin@example.com",
		"name":               "Erin",
		"preferred_username": "erin",
	})
	idToken.Header["kid"] = "k1"
	signed, err := idToken.SignedString(p.key)
	require.NoError(p.t, err)

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "provider-access",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     signed,
	})
}

func (p *provider) userinfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer provider-access" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    12345,
		"login": "frank",
		"email": "frank@example.com",
		"name":  "Frank",
	})
}

func TestOIDCVerifier(t *testing.T) {
	p := newProvider(t)

	v, err := federation.NewOIDCVerifier(federation.OIDCConfig{
		IssuerURL:   p.server.URL,
		ClientID:    clientID,
		RedirectURL: "https://app.example.com/cb",
	})
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "good-code", "")
	require.NoError(t, err)
	require.Equal(t, "sub-42", id.Subject)
	require.Equal(t, "erin", id.Username)
	require.Equal(t, "erin@example.com", id.Email)
	require.Equal(t, "Erin", id.Nickname)

	_, err = v.Verify(context.Background(), "bad-code", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, errors.ErrVerifierUnavailable)

	p.down = true
	_, err = v.Verify(context.Background(), "good-code", "")
	require.ErrorIs(t, err, errors.ErrVerifierUnavailable)
}

func TestOIDCVerifierUnreachableIssuer(t *testing.T) {
	v, err := federation.NewOIDCVerifier(federation.OIDCConfig{IssuerURL: "http://127.0.0.1:1", ClientID: clientID})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "good-code", "")
	require.ErrorIs(t, err, errors.ErrVerifierUnavailable)
}

func TestOAuth2Verifier(t *testing.T) {
	p := newProvider(t)

	v, err := federation.NewOAuth2Verifier(federation.OAuth2Config{
		TokenURL:    p.server.URL + "/token",
		UserInfoURL: p.server.URL + "/userinfo",
		ClientID:    clientID,
	})
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "good-code", "https://app.example.com/cb")
	require.NoError(t, err)
	require.Equal(t, "12345", id.Subject)
	require.Equal(t, "frank", id.Username)
	require.Equal(t, "Frank", id.Nickname)

	_, err = v.Verify(context.Background(), "bad-code", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, errors.ErrVerifierUnavailable)
}

func TestConstructorsValidateConfig(t *testing.T) {
	_, err := federation.NewOIDCVerifier(federation.OIDCConfig{ClientID: clientID})
	require.Error(t, err)
	_, err = federation.NewOAuth2Verifier(federation.OAuth2Config{TokenURL: "http://x/token"})
	require.Error(t, err)
}
