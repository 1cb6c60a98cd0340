package token

import (
	"time"

	"github.com/jrsteele09/go-tenant-auth/users"
)

// DefaultDeviceID is used when a client does not identify its device.
const DefaultDeviceID = "unknown"

// Session is one signed-in device of an account.
type Session struct {
	TenantID         string    `json:"tenantId"`
	Username         string    `json:"username"`
	DeviceID         string    `json:"deviceId"`
	TokenID          string    `json:"-"`
	RefreshID        string    `json:"-"`
	IssuedAt         time.Time `json:"issuedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`

	principal users.Principal
}

// grant keeps the refresh id of a session whose access token expired, so the
// device can still refresh until the refresh token itself expires.
type grant struct {
	deviceID         string
	refreshID        string
	refreshExpiresAt time.Time
	principal        users.Principal
}

func (s *Session) grant() grant {
	return grant{
		deviceID:         s.DeviceID,
		refreshID:        s.RefreshID,
		refreshExpiresAt: s.RefreshExpiresAt,
		principal:        s.principal,
	}
}

type accountKey struct {
	tenantID string
	username string
}

func normalizeDevice(deviceID string) string {
	if deviceID == "" {
		return DefaultDeviceID
	}
	return deviceID
}
