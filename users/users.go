package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Status is the account state stored with each user.
type Status int

const (
	StatusDisabled Status = 0
	StatusEnabled  Status = 1
	StatusDeparted Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusEnabled:
		return "enabled"
	case StatusDeparted:
		return "departed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// RoleType names a role granted inside a tenant
type RoleType string

const (
	RoleSuperAdmin  RoleType = "super_admin"  // Holds every permission
	RoleTenantAdmin RoleType = "tenant_admin" // Can manage users within a tenant
	RoleTenantUser  RoleType = "tenant_user"  // Regular user within a tenant
)

// Permission strings checked by the HTTP layer.
const (
	PermissionAll          = "*:*:*"
	PermissionUserList     = "system:user:list"
	PermissionLoginLogList = "monitor:logininfor:list"
	PermissionUserUnlock   = "monitor:logininfor:unlock"
)

// User is an account inside exactly one tenant.
type User struct {
	ID             string    `json:"id,omitempty"`
	TenantID       string    `json:"tenant_id,omitempty"`
	Username       string    `json:"username,omitempty"`
	PasswordHash   string    `json:"-"` // never serialize
	Nickname       string    `json:"nickname,omitempty"`
	Email          string    `json:"email,omitempty"`
	Status         Status    `json:"status"`
	Roles          []string  `json:"roles,omitempty"`
	Permissions    []string  `json:"permissions,omitempty"`
	ExternalSource string    `json:"external_source,omitempty"` // login type that provisioned the account
	ExternalID     string    `json:"external_id,omitempty"`     // subject at the external provider
	LastLoginAt    time.Time `json:"last_login_at,omitempty"`
	LastLoginIP    string    `json:"last_login_ip,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Principal builds the authenticated identity for this user.
func (u *User) Principal(tenantCode string) Principal {
	return NewPrincipal(u.ID, u.Username, u.TenantID, tenantCode, u.Roles, u.Permissions, u.Status)
}

func (u *User) CanLogin() bool {
	return u.Status == StatusEnabled
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
