package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-auth/users"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims is the token payload. The subject is the username.
type Claims struct {
	UserID      string   `json:"userId"`
	TenantID    string   `json:"tenantId"`
	TenantCode  string   `json:"tenantCode,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	DeviceID    string   `json:"deviceId"`
	TokenUse    string   `json:"tokenUse"`
	jwt.RegisteredClaims
}

func newClaims(p users.Principal, deviceID, use string, registered jwt.RegisteredClaims) *Claims {
	c := &Claims{
		UserID:           p.UserID,
		TenantID:         p.TenantID,
		DeviceID:         deviceID,
		TokenUse:         use,
		RegisteredClaims: registered,
	}
	if use == useAccess {
		c.TenantCode = p.TenantCode
		c.Roles = p.Roles
		c.Permissions = p.Permissions
	}
	return c
}

// principal rebuilds the request principal from verified access token claims.
func (c *Claims) principal() users.Principal {
	return users.NewPrincipal(c.UserID, c.Subject, c.TenantID, c.TenantCode, c.Roles, c.Permissions, users.StatusEnabled)
}
